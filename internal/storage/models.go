package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message is one conversation turn, persisted so history survives restarts.
type Message struct {
	ID        string
	UserID    int64
	Username  string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Reminder is a persisted one-off notification. A user holds at most one
// reminder per ReminderID; NotifyAt is always stored in UTC.
type Reminder struct {
	UserID           int64
	ChatID           int64
	ReminderID       string
	ReminderText     string
	NotificationText string
	NotifyAt         time.Time
	CreatedAt        time.Time
}

// UserProfile holds per-user settings needed to interpret reminder times.
type UserProfile struct {
	UserID      int64
	DisplayName string
	Timezone    string // IANA zone name, e.g. "Europe/London"
	UpdatedAt   time.Time
}
