package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for messages, reminders, and
// user profiles.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "sente.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Messages ---

func (s *Store) SaveMessage(m Message) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO messages (id, user_id, username, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Username, m.Role, m.Content,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetMessages returns all messages for a user in chronological order.
func (s *Store) GetMessages(userID int64) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, username, role, content, created_at
		FROM messages WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- Reminders ---

// SaveReminder inserts a reminder, replacing any existing one with the same
// (user_id, reminder_id). A later directive with identical reminder text
// supersedes the earlier reminder.
func (s *Store) SaveReminder(r Reminder) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO reminders (user_id, chat_id, reminder_id, reminder_text, notification_text, notify_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, reminder_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			reminder_text = excluded.reminder_text,
			notification_text = excluded.notification_text,
			notify_at = excluded.notify_at`,
		r.UserID, r.ChatID, r.ReminderID, r.ReminderText, r.NotificationText,
		r.NotifyAt.UTC().Format(time.RFC3339), createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListReminders returns every persisted reminder. Used by the scheduler to
// rebuild its timer set on startup.
func (s *Store) ListReminders() ([]Reminder, error) {
	return s.queryReminders(`
		SELECT user_id, chat_id, reminder_id, reminder_text, notification_text, notify_at, created_at
		FROM reminders ORDER BY notify_at ASC`)
}

// ListUserReminders returns the reminders belonging to a single user.
func (s *Store) ListUserReminders(userID int64) ([]Reminder, error) {
	return s.queryReminders(`
		SELECT user_id, chat_id, reminder_id, reminder_text, notification_text, notify_at, created_at
		FROM reminders WHERE user_id = ? ORDER BY notify_at ASC`, userID)
}

func (s *Store) queryReminders(query string, args ...any) ([]Reminder, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Reminder
	for rows.Next() {
		var r Reminder
		var notifyAt, createdAt string
		if err := rows.Scan(&r.UserID, &r.ChatID, &r.ReminderID, &r.ReminderText, &r.NotificationText, &notifyAt, &createdAt); err != nil {
			return nil, err
		}
		if r.NotifyAt, err = time.Parse(time.RFC3339, notifyAt); err != nil {
			return nil, fmt.Errorf("parsing notify_at: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteReminder removes a reminder by owner and id. Returns ErrNotFound if
// no such reminder exists.
func (s *Store) DeleteReminder(userID int64, reminderID string) error {
	res, err := s.db.Exec(`DELETE FROM reminders WHERE user_id = ? AND reminder_id = ?`, userID, reminderID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- User profiles ---

func (s *Store) SetTimezone(userID int64, displayName, timezone string) error {
	_, err := s.db.Exec(`
		INSERT INTO user_profiles (user_id, display_name, timezone, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`,
		userID, displayName, timezone, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetTimezone returns the user's stored IANA timezone name, or ErrNotFound
// when the user has not set one yet.
func (s *Store) GetTimezone(userID int64) (string, error) {
	var tz string
	err := s.db.QueryRow("SELECT timezone FROM user_profiles WHERE user_id = ?", userID).Scan(&tz)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return tz, err
}
