// Package gateway is the chat transport. It speaks the Telegram Bot API over
// plain HTTP long-polling: inbound message events go to a handler, outbound
// text goes through SendMessage.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Message is one inbound chat message event.
type Message struct {
	UserID      int64
	ChatID      int64
	DisplayName string
	Text        string
}

// Handler receives inbound messages from Poll.
type Handler func(ctx context.Context, msg Message)

// Client communicates with the Telegram Bot API.
type Client struct {
	baseURL     string
	token       string
	pollTimeout int // long-poll timeout in seconds
	httpClient  *http.Client
	logger      *slog.Logger
}

// New creates a Client with the given bot token. pollTimeout is the
// getUpdates long-poll window in seconds.
func New(token string, pollTimeout int) *Client {
	if pollTimeout <= 0 {
		pollTimeout = 50
	}
	return &Client{
		baseURL:     defaultBaseURL,
		token:       token,
		pollTimeout: pollTimeout,
		httpClient: &http.Client{
			// Must outlast the long-poll window.
			Timeout: time.Duration(pollTimeout+10) * time.Second,
		},
		logger: slog.Default(),
	}
}

// NewWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewWithBaseURL(token string, pollTimeout int, baseURL string) *Client {
	c := New(token, pollTimeout)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// --- Telegram wire types ---

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID int64  `json:"message_id"`
	From      tgUser `json:"from"`
	Chat      tgChat `json:"chat"`
	Text      string `json:"text"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type getUpdatesRequest struct {
	Offset  int64 `json:"offset,omitempty"`
	Timeout int   `json:"timeout"`
}

// SendMessage delivers text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	var result json.RawMessage
	err := c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text}, &result)
	if err != nil {
		return fmt.Errorf("sending message to chat %d: %w", chatID, err)
	}
	return nil
}

// Poll long-polls getUpdates until ctx is cancelled, dispatching each inbound
// text message to handle in its own goroutine. The per-user ordering that the
// coordinator needs is enforced by its session locks, not here.
func (c *Client) Poll(ctx context.Context, handle Handler) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("polling updates", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			msg := Message{
				UserID:      u.Message.From.ID,
				ChatID:      u.Message.Chat.ID,
				DisplayName: displayName(u.Message.From),
				Text:        u.Message.Text,
			}
			go handle(ctx, msg)
		}
	}
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]tgUpdate, error) {
	var updates []tgUpdate
	err := c.call(ctx, "getUpdates", getUpdatesRequest{Offset: offset, Timeout: c.pollTimeout}, &updates)
	if err != nil {
		return nil, fmt.Errorf("getting updates: %w", err)
	}
	return updates, nil
}

// call posts a Bot API method and decodes its result envelope.
func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	var envelope tgResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !envelope.OK {
		if envelope.Description == "" {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return errors.New(envelope.Description)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	return nil
}

func displayName(u tgUser) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Unknown"
}
