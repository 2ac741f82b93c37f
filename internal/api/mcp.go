package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/shim2k/SenteAI/internal/directive"
	"github.com/shim2k/SenteAI/internal/storage"
)

// MCPScheduler abstracts the reminder lifecycle for the MCP layer.
type MCPScheduler interface {
	Add(rec storage.Reminder) error
	Cancel(userID int64, reminderID string) (bool, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     ReminderLister
	Scheduler MCPScheduler
}

// NewMCPServer creates an MCP server exposing reminder tools over stdio.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sente",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("sente — conversational reminder assistant. Tools create, cancel, and list reminders."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_reminder",
			mcp.WithDescription("Schedule a reminder for a user at an absolute time."),
			mcp.WithNumber("user_id", mcp.Description("Telegram user id"), mcp.Required()),
			mcp.WithNumber("chat_id", mcp.Description("Chat id to deliver the notification to"), mcp.Required()),
			mcp.WithString("text", mcp.Description("What to be reminded about; also the cancellation key"), mcp.Required()),
			mcp.WithString("notify_at", mcp.Description("Delivery time, RFC 3339"), mcp.Required()),
			mcp.WithString("notification", mcp.Description("Message sent when the reminder fires")),
		),
		mcpCreateReminder(deps),
	)

	s.AddTool(
		mcp.NewTool("cancel_reminder",
			mcp.WithDescription("Cancel a reminder by its original text."),
			mcp.WithNumber("user_id", mcp.Description("Telegram user id"), mcp.Required()),
			mcp.WithString("text", mcp.Description("The reminder text used when it was created"), mcp.Required()),
		),
		mcpCancelReminder(deps),
	)

	s.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List pending reminders, optionally for a single user."),
			mcp.WithNumber("user_id", mcp.Description("Restrict to this user")),
		),
		mcpListReminders(deps),
	)

	return s
}

func mcpCreateReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireInt("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		chatID, err := req.RequireInt("chat_id")
		if err != nil {
			return mcpError("chat_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		notifyAtRaw, err := req.RequireString("notify_at")
		if err != nil {
			return mcpError("notify_at is required"), nil
		}
		notifyAt, err := time.Parse(time.RFC3339, notifyAtRaw)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid notify_at: %v", err)), nil
		}
		notification := req.GetString("notification", text)

		rec := storage.Reminder{
			UserID:           int64(userID),
			ChatID:           int64(chatID),
			ReminderID:       directive.ReminderID(text),
			ReminderText:     text,
			NotificationText: notification,
			NotifyAt:         notifyAt.UTC(),
		}
		if err := deps.Scheduler.Add(rec); err != nil {
			return mcpError(fmt.Sprintf("failed to schedule: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Scheduled reminder %s for %s", rec.ReminderID, rec.NotifyAt.Format(time.RFC3339))), nil
	}
}

func mcpCancelReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireInt("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		id := directive.ReminderID(text)
		found, err := deps.Scheduler.Cancel(int64(userID), id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to cancel: %v", err)), nil
		}
		if !found {
			return mcpError(fmt.Sprintf("no reminder found for %q", text)), nil
		}

		return mcpText(fmt.Sprintf("Cancelled reminder %s", id)), nil
	}
}

func mcpListReminders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			recs []storage.Reminder
			err  error
		)
		if userID := req.GetInt("user_id", 0); userID != 0 {
			recs, err = deps.Store.ListUserReminders(int64(userID))
		} else {
			recs, err = deps.Store.ListReminders()
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list: %v", err)), nil
		}

		b, err := json.Marshal(toReminderJSON(recs))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
