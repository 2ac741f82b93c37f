// Package api exposes the management surface: an HTTP handler for inspecting
// and cancelling reminders, and an MCP server mirroring the same operations
// for agent clients.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shim2k/SenteAI/internal/storage"
)

// ReminderLister abstracts the read side of the reminder store.
type ReminderLister interface {
	ListReminders() ([]storage.Reminder, error)
	ListUserReminders(userID int64) ([]storage.Reminder, error)
}

// ReminderCanceller disarms and deletes a reminder.
type ReminderCanceller interface {
	Cancel(userID int64, reminderID string) (bool, error)
}

// HandlerDeps holds the management API dependencies.
type HandlerDeps struct {
	Store     ReminderLister
	Scheduler ReminderCanceller
	Token     string
}

// NewHandler builds the management router. /health is open; everything else
// requires the bearer token.
func NewHandler(deps HandlerDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(deps.Token))
		r.Get("/reminders", handleListReminders(deps))
		r.Get("/users/{userID}/reminders", handleListUserReminders(deps))
		r.Delete("/users/{userID}/reminders/{reminderID}", handleCancelReminder(deps))
	})

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reminderJSON struct {
	UserID           int64  `json:"user_id"`
	ChatID           int64  `json:"chat_id"`
	ReminderID       string `json:"reminder_id"`
	ReminderText     string `json:"reminder_text"`
	NotificationText string `json:"notification_text"`
	NotifyAt         string `json:"notify_at"`
	CreatedAt        string `json:"created_at"`
}

func toReminderJSON(recs []storage.Reminder) []reminderJSON {
	out := make([]reminderJSON, len(recs))
	for i, r := range recs {
		out[i] = reminderJSON{
			UserID:           r.UserID,
			ChatID:           r.ChatID,
			ReminderID:       r.ReminderID,
			ReminderText:     r.ReminderText,
			NotificationText: r.NotificationText,
			NotifyAt:         r.NotifyAt.UTC().Format(time.RFC3339),
			CreatedAt:        r.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return out
}

func handleListReminders(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Store.ListReminders()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing reminders: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toReminderJSON(recs))
	}
}

func handleListUserReminders(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user id")
			return
		}
		recs, err := deps.Store.ListUserReminders(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing reminders: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toReminderJSON(recs))
	}
}

func handleCancelReminder(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user id")
			return
		}
		reminderID := chi.URLParam(r, "reminderID")

		found, err := deps.Scheduler.Cancel(userID, reminderID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "cancelling reminder: %v", err)
			return
		}
		if !found {
			httpError(w, http.StatusNotFound, "not_found", "no such reminder")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
