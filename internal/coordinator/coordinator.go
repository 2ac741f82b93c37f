// Package coordinator orchestrates one inbound chat message: it maintains
// per-user conversation history, invokes the language model, extracts any
// scheduling directive from the reply, drives the scheduler, and answers the
// user with the user-facing section only.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/shim2k/SenteAI/internal/directive"
	"github.com/shim2k/SenteAI/internal/gateway"
	"github.com/shim2k/SenteAI/internal/llm"
	"github.com/shim2k/SenteAI/internal/storage"
)

const assistantName = "Assistant"

// MessageStore is the durable side of the coordinator. Implemented by
// storage.Store.
type MessageStore interface {
	SaveMessage(m storage.Message) error
	GetMessages(userID int64) ([]storage.Message, error)
	GetTimezone(userID int64) (string, error)
	SetTimezone(userID int64, displayName, timezone string) error
}

// Completer produces a model reply for ordered chat turns. Implemented by
// llm.Client.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Replier sends text back to a chat. Implemented by gateway.Client.
type Replier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// ReminderScheduler drives the reminder lifecycle. Implemented by
// scheduler.Scheduler.
type ReminderScheduler interface {
	Add(rec storage.Reminder) error
	Cancel(userID int64, reminderID string) (bool, error)
}

// TimezoneResolver maps a location description to an IANA zone name.
// Implemented by timezone.Resolver.
type TimezoneResolver interface {
	Resolve(ctx context.Context, location string) (string, error)
}

// Deps holds the coordinator's collaborators. Clock is optional and defaults
// to the wall clock.
type Deps struct {
	Store     MessageStore
	LLM       Completer
	Scheduler ReminderScheduler
	Replier   Replier
	Timezones TimezoneResolver
	Clock     clock.Clock
}

// session is one user's conversational state. Its mutex serializes that
// user's pipeline so two quick messages cannot interleave their history
// appends; separate users proceed concurrently.
type session struct {
	mu               sync.Mutex
	hydrated         bool
	name             string
	history          []storage.Message
	location         *time.Location
	awaitingLocation bool
}

// Coordinator runs the per-message pipeline.
type Coordinator struct {
	store     MessageStore
	llm       Completer
	scheduler ReminderScheduler
	replier   Replier
	timezones TimezoneResolver
	clk       clock.Clock
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

// New creates a Coordinator.
func New(deps Deps) *Coordinator {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Coordinator{
		store:     deps.Store,
		llm:       deps.LLM,
		scheduler: deps.Scheduler,
		replier:   deps.Replier,
		timezones: deps.Timezones,
		clk:       clk,
		logger:    slog.Default(),
		sessions:  make(map[int64]*session),
	}
}

// HandleMessage runs the full pipeline for one inbound message. It is safe to
// call concurrently; messages from the same user are serialized.
func (c *Coordinator) HandleMessage(ctx context.Context, msg gateway.Message) {
	sess := c.session(msg.UserID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := c.hydrate(sess, msg.UserID); err != nil {
		c.logger.Error("hydrating session", "user_id", msg.UserID, "error", err)
		return
	}
	sess.name = msg.DisplayName

	// Stamp the inbound text so the model can resolve relative times. The
	// stamp uses the user's zone once known; before that UTC is as good as
	// anything, since no directive can be interpreted yet anyway.
	loc := sess.location
	if loc == nil {
		loc = time.UTC
	}
	now := c.clk.Now().In(loc)
	stamped := fmt.Sprintf("The datetime is %s. %s", now.Format(directive.TimeLayout), msg.Text)
	c.record(sess, msg.UserID, msg.DisplayName, "user", stamped)

	// No timezone yet: run the location dialogue instead of the model.
	if sess.location == nil {
		c.runLocationDialogue(ctx, sess, msg)
		return
	}

	reply, err := c.llm.Complete(ctx, c.buildTurns(sess))
	if err != nil {
		c.logger.Error("requesting completion", "user_id", msg.UserID, "error", err)
		return
	}
	if strings.TrimSpace(reply) == "" {
		// Empty reply: no directive processing, no outbound message.
		return
	}

	// The raw reply, internal section included, goes into history so the
	// model sees its own past directives.
	c.record(sess, msg.UserID, assistantName, "assistant", reply)

	c.applyDirective(msg, directive.Parse(reply), sess.location)

	if userFacing := directive.UserFacing(reply); userFacing != "" {
		if err := c.replier.SendMessage(ctx, msg.ChatID, userFacing); err != nil {
			c.logger.Error("replying", "user_id", msg.UserID, "error", err)
		}
	}
}

// session returns (creating if needed) the state object for a user.
func (c *Coordinator) session(userID int64) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[userID]
	if !ok {
		s = &session{}
		c.sessions[userID] = s
	}
	return s
}

// hydrate lazily loads a user's history and timezone on first contact.
func (c *Coordinator) hydrate(sess *session, userID int64) error {
	if sess.hydrated {
		return nil
	}

	msgs, err := c.store.GetMessages(userID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	sess.history = msgs

	tz, err := c.store.GetTimezone(userID)
	switch {
	case err == nil:
		loc, lerr := time.LoadLocation(tz)
		if lerr != nil {
			c.logger.Warn("stored timezone is invalid, re-asking", "user_id", userID, "timezone", tz, "error", lerr)
		} else {
			sess.location = loc
		}
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("loading timezone: %w", err)
	}

	sess.hydrated = true
	return nil
}

// record persists a conversation turn and appends it to the session cache.
// Persistence failure is logged but does not halt the pipeline; the cached
// copy keeps the conversation coherent for this process lifetime.
func (c *Coordinator) record(sess *session, userID int64, username, role, content string) {
	m := storage.Message{
		ID:        uuid.New().String(),
		UserID:    userID,
		Username:  username,
		Role:      role,
		Content:   content,
		CreatedAt: c.clk.Now(),
	}
	if err := c.store.SaveMessage(m); err != nil {
		c.logger.Error("saving message", "user_id", userID, "error", err)
	}
	sess.history = append(sess.history, m)
}

// buildTurns assembles the model request: system instruction, a synthetic
// turn naming the user, then the full ordered history.
func (c *Coordinator) buildTurns(sess *session) []llm.Message {
	turns := make([]llm.Message, 0, len(sess.history)+2)
	turns = append(turns, llm.Message{Role: "system", Content: systemPrompt})
	turns = append(turns, llm.Message{Role: "user", Content: "my name is " + sess.name})
	for _, m := range sess.history {
		role := "assistant"
		if m.Role == "user" {
			role = "user"
		}
		turns = append(turns, llm.Message{Role: role, Content: m.Content})
	}
	return turns
}

func (c *Coordinator) applyDirective(msg gateway.Message, d directive.Directive, loc *time.Location) {
	switch d.Kind {
	case directive.None:

	case directive.Malformed:
		c.logger.Warn("dropping malformed directive", "user_id", msg.UserID, "reason", d.Reason)

	case directive.New:
		rec := storage.Reminder{
			UserID:           msg.UserID,
			ChatID:           msg.ChatID,
			ReminderID:       directive.ReminderID(d.ReminderText),
			ReminderText:     d.ReminderText,
			NotificationText: d.NotificationText,
			NotifyAt:         d.WhenIn(loc).UTC(),
		}
		if err := c.scheduler.Add(rec); err != nil {
			c.logger.Error("scheduling reminder",
				"user_id", msg.UserID, "reminder_id", rec.ReminderID, "error", err)
		}

	case directive.Cancel:
		id := directive.ReminderID(d.ReminderText)
		found, err := c.scheduler.Cancel(msg.UserID, id)
		if err != nil {
			c.logger.Error("cancelling reminder", "user_id", msg.UserID, "reminder_id", id, "error", err)
		} else if !found {
			c.logger.Info("cancel for unknown reminder", "user_id", msg.UserID, "reminder_id", id)
		}
	}
}

// runLocationDialogue asks for the user's location and resolves it to a
// timezone. Until this completes the model pipeline stays suspended, so a
// directive time string is never interpreted without a zone.
func (c *Coordinator) runLocationDialogue(ctx context.Context, sess *session, msg gateway.Message) {
	if !sess.awaitingLocation {
		sess.awaitingLocation = true
		c.reply(ctx, sess, msg, "Hi! Before I can set reminders for you I need to know your timezone. Where are you located? A city or country is fine.")
		return
	}

	tz, err := c.timezones.Resolve(ctx, msg.Text)
	if err != nil {
		c.logger.Warn("resolving location", "user_id", msg.UserID, "error", err)
		c.reply(ctx, sess, msg, "I couldn't work out a timezone from that. Could you give me a city or country?")
		return
	}

	if err := c.store.SetTimezone(msg.UserID, msg.DisplayName, tz); err != nil {
		c.logger.Error("storing timezone", "user_id", msg.UserID, "error", err)
		c.reply(ctx, sess, msg, "Something went wrong saving your timezone. Please try again.")
		return
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		// The resolver validated the zone; this only fires on a zone DB mismatch.
		c.logger.Error("loading resolved timezone", "timezone", tz, "error", err)
		return
	}
	sess.location = loc
	sess.awaitingLocation = false
	c.reply(ctx, sess, msg, fmt.Sprintf("Thanks! Your timezone is set to %s. What can I do for you?", tz))
}

// reply records a dialogue answer as an assistant turn and sends it.
func (c *Coordinator) reply(ctx context.Context, sess *session, msg gateway.Message, text string) {
	c.record(sess, msg.UserID, assistantName, "assistant", text)
	if err := c.replier.SendMessage(ctx, msg.ChatID, text); err != nil {
		c.logger.Error("replying", "user_id", msg.UserID, "error", err)
	}
}
