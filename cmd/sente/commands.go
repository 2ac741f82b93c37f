package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shim2k/SenteAI/internal/config"
)

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- reminders ---

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Inspect and cancel pending reminders",
}

type reminderRow struct {
	UserID           int64  `json:"user_id"`
	ChatID           int64  `json:"chat_id"`
	ReminderID       string `json:"reminder_id"`
	ReminderText     string `json:"reminder_text"`
	NotificationText string `json:"notification_text"`
	NotifyAt         string `json:"notify_at"`
}

var remindersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/reminders"
		if userID != 0 {
			path = fmt.Sprintf("/users/%d/reminders", userID)
		}
		resp, err := client.get(context.Background(), path)
		if err != nil {
			return err
		}

		var reminders []reminderRow
		if err := decodeJSON(resp, &reminders); err != nil {
			return err
		}

		if len(reminders) == 0 {
			fmt.Println("No pending reminders.")
			return nil
		}

		for _, r := range reminders {
			when := r.NotifyAt
			if t, err := time.Parse(time.RFC3339, r.NotifyAt); err == nil {
				when = t.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%s  user %d  %s  %s\n",
				colorize(colorCyan, r.ReminderID),
				r.UserID,
				when,
				r.ReminderText,
			)
		}
		return nil
	},
}

var remindersCancelCmd = &cobra.Command{
	Use:   "cancel <user-id> <reminder-id>",
	Short: "Cancel a pending reminder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(context.Background(), fmt.Sprintf("/users/%s/reminders/%s", args[0], args[1]))
		if err != nil {
			return err
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case 204:
			printSuccess("Cancelled reminder %s", args[1])
			return nil
		case 404:
			return fmt.Errorf("no such reminder: %s", args[1])
		default:
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}
	},
}

func init() {
	remindersListCmd.Flags().Int64("user", 0, "restrict to one user id")
	remindersCmd.AddCommand(remindersListCmd)
	remindersCmd.AddCommand(remindersCancelCmd)
}
