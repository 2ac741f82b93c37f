// Package scheduler owns the live timer set for reminders. What is scheduled
// is always backed by what is persisted: a timer is only armed after its
// record is stored, and the record is only deleted after the notification is
// delivered (or the reminder cancelled).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/shim2k/SenteAI/internal/storage"
)

// ReminderStore is the durable side of the scheduler. Implemented by
// storage.Store.
type ReminderStore interface {
	SaveReminder(r storage.Reminder) error
	ListReminders() ([]storage.Reminder, error)
	DeleteReminder(userID int64, reminderID string) error
}

// Notifier delivers a notification to a chat. Implemented by gateway.Client.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type jobKey struct {
	userID     int64
	reminderID string
}

// Scheduler arms one timer per live reminder and fires, cancels, and
// reconciles them against the store.
type Scheduler struct {
	store    ReminderStore
	notifier Notifier
	clk      clock.Clock
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[jobKey]*clock.Timer
}

// New creates a Scheduler using the wall clock.
func New(store ReminderStore, notifier Notifier) *Scheduler {
	return NewWithClock(store, notifier, clock.New())
}

// NewWithClock creates a Scheduler with a custom clock (for testing).
func NewWithClock(store ReminderStore, notifier Notifier, clk clock.Clock) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: notifier,
		clk:      clk,
		logger:   slog.Default(),
		jobs:     make(map[jobKey]*clock.Timer),
	}
}

// Add persists the reminder and then arms its timer. If persisting fails no
// timer is armed and the error is returned to the caller. An existing live
// reminder with the same id is replaced, timer included.
func (s *Scheduler) Add(rec storage.Reminder) error {
	if err := s.store.SaveReminder(rec); err != nil {
		return fmt.Errorf("persisting reminder: %w", err)
	}
	s.arm(rec)
	s.logger.Info("reminder scheduled",
		"user_id", rec.UserID, "reminder_id", rec.ReminderID, "notify_at", rec.NotifyAt)
	return nil
}

// Cancel disarms the timer (if live) and deletes the persisted record. It
// reports false when no such reminder exists; that outcome is a no-op, not an
// error. After Cancel returns, a fire that has not yet started delivery will
// observe the dropped entry and do nothing.
func (s *Scheduler) Cancel(userID int64, reminderID string) (bool, error) {
	key := jobKey{userID, reminderID}

	s.mu.Lock()
	if t, ok := s.jobs[key]; ok {
		t.Stop()
		delete(s.jobs, key)
	}
	s.mu.Unlock()

	err := s.store.DeleteReminder(userID, reminderID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting reminder: %w", err)
	}
	s.logger.Info("reminder cancelled", "user_id", userID, "reminder_id", reminderID)
	return true, nil
}

// Scheduled reports whether a live timer exists for the given reminder.
func (s *Scheduler) Scheduled(userID int64, reminderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobKey{userID, reminderID}]
	return ok
}

// Reconcile rebuilds the timer set from the store. Reminders whose time has
// already passed fire immediately rather than being dropped; a reminder is
// never silently lost to a restart.
func (s *Scheduler) Reconcile() error {
	recs, err := s.store.ListReminders()
	if err != nil {
		return fmt.Errorf("loading reminders: %w", err)
	}
	for _, rec := range recs {
		s.arm(rec)
	}
	s.logger.Info("reminders reconciled", "count", len(recs))
	return nil
}

// Stop disarms every live timer. Records stay persisted, so the next
// Reconcile picks them back up.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.jobs {
		t.Stop()
		delete(s.jobs, key)
	}
}

func (s *Scheduler) arm(rec storage.Reminder) {
	key := jobKey{rec.UserID, rec.ReminderID}
	d := rec.NotifyAt.Sub(s.clk.Now())
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.jobs[key]; ok {
		t.Stop()
	}
	// AfterFunc runs fire in its own goroutine, so one slow delivery never
	// blocks other timers.
	s.jobs[key] = s.clk.AfterFunc(d, func() { s.fire(rec) })
}

func (s *Scheduler) fire(rec storage.Reminder) {
	key := jobKey{rec.UserID, rec.ReminderID}

	// A cancel that completed before this point removed the entry.
	s.mu.Lock()
	_, live := s.jobs[key]
	s.mu.Unlock()
	if !live {
		return
	}

	if err := s.notifier.SendMessage(context.Background(), rec.ChatID, rec.NotificationText); err != nil {
		// Keep the record: the next reconciliation re-arms and retries it.
		s.logger.Error("delivering reminder",
			"user_id", rec.UserID, "reminder_id", rec.ReminderID, "error", err)
		s.mu.Lock()
		delete(s.jobs, key)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	delete(s.jobs, key)
	s.mu.Unlock()

	if err := s.store.DeleteReminder(rec.UserID, rec.ReminderID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("removing delivered reminder",
			"user_id", rec.UserID, "reminder_id", rec.ReminderID, "error", err)
		return
	}
	s.logger.Info("reminder delivered", "user_id", rec.UserID, "reminder_id", rec.ReminderID)
}
