package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no migrations applied")
	}
	for i, v := range versions {
		if v != i+1 {
			t.Errorf("versions[%d] = %d, want %d", i, v, i+1)
		}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "m1", UserID: 1, Username: "Ada", Role: "user", Content: "hello", CreatedAt: base},
		{ID: "m2", UserID: 1, Username: "Assistant", Role: "assistant", Content: "hi!", CreatedAt: base.Add(time.Second)},
		{ID: "m3", UserID: 2, Username: "Bob", Role: "user", Content: "other user", CreatedAt: base},
	}
	for _, m := range msgs {
		if err := s.SaveMessage(m); err != nil {
			t.Fatalf("SaveMessage(%s): %v", m.ID, err)
		}
	}

	got, err := s.GetMessages(1)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Errorf("order = [%s %s], want [m1 m2]", got[0].ID, got[1].ID)
	}
	if got[0].Content != "hello" || got[0].Role != "user" || got[0].Username != "Ada" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if !got[1].CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("CreatedAt = %v", got[1].CreatedAt)
	}
}

func TestMessagesOrderedWithinSameTimestamp(t *testing.T) {
	s := openTestStore(t)

	// Identical timestamps must fall back to insertion order.
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveMessage(Message{ID: id, UserID: 1, Role: "user", Content: id, CreatedAt: at}); err != nil {
			t.Fatalf("SaveMessage(%s): %v", id, err)
		}
	}

	got, err := s.GetMessages(1)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Errorf("order = %v", []string{got[0].ID, got[1].ID, got[2].ID})
	}
}

func TestGetMessagesEmpty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetMessages(99)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}

func TestReminderLifecycle(t *testing.T) {
	s := openTestStore(t)

	r := Reminder{
		UserID:           1,
		ChatID:           42,
		ReminderID:       "deadbeefdeadbeef",
		ReminderText:     "call mom",
		NotificationText: "Call your mother now",
		NotifyAt:         time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
	}
	if err := s.SaveReminder(r); err != nil {
		t.Fatalf("SaveReminder: %v", err)
	}

	got, err := s.ListUserReminders(1)
	if err != nil {
		t.Fatalf("ListUserReminders: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d reminders, want 1", len(got))
	}
	if got[0].ReminderText != "call mom" || got[0].ChatID != 42 {
		t.Errorf("got[0] = %+v", got[0])
	}
	if !got[0].NotifyAt.Equal(r.NotifyAt) {
		t.Errorf("NotifyAt = %v, want %v", got[0].NotifyAt, r.NotifyAt)
	}

	if err := s.DeleteReminder(1, r.ReminderID); err != nil {
		t.Fatalf("DeleteReminder: %v", err)
	}
	got, err = s.ListUserReminders(1)
	if err != nil {
		t.Fatalf("ListUserReminders: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d reminders after delete, want 0", len(got))
	}
}

func TestSaveReminderReplacesSameIdentity(t *testing.T) {
	s := openTestStore(t)

	first := Reminder{
		UserID: 1, ChatID: 42, ReminderID: "abc123",
		ReminderText: "call mom", NotificationText: "first",
		NotifyAt: time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
	}
	second := first
	second.NotificationText = "second"
	second.NotifyAt = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	if err := s.SaveReminder(first); err != nil {
		t.Fatalf("SaveReminder(first): %v", err)
	}
	if err := s.SaveReminder(second); err != nil {
		t.Fatalf("SaveReminder(second): %v", err)
	}

	got, err := s.ListUserReminders(1)
	if err != nil {
		t.Fatalf("ListUserReminders: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d reminders, want 1", len(got))
	}
	if got[0].NotificationText != "second" || !got[0].NotifyAt.Equal(second.NotifyAt) {
		t.Errorf("got[0] = %+v", got[0])
	}
}

func TestSameIdentityDifferentUsersCoexist(t *testing.T) {
	s := openTestStore(t)

	at := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	for _, uid := range []int64{1, 2} {
		r := Reminder{UserID: uid, ChatID: uid, ReminderID: "abc123", ReminderText: "call mom", NotifyAt: at}
		if err := s.SaveReminder(r); err != nil {
			t.Fatalf("SaveReminder(user %d): %v", uid, err)
		}
	}

	all, err := s.ListReminders()
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d reminders, want 2", len(all))
	}
}

func TestDeleteReminderNotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.DeleteReminder(1, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteReminder = %v, want ErrNotFound", err)
	}
}

func TestListRemindersOrderedByNotifyAt(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"late", "early", "mid"} {
		offsets := []time.Duration{2 * time.Hour, 0, time.Hour}
		r := Reminder{UserID: 1, ReminderID: id, ReminderText: id, NotifyAt: base.Add(offsets[i])}
		if err := s.SaveReminder(r); err != nil {
			t.Fatalf("SaveReminder(%s): %v", id, err)
		}
	}

	all, err := s.ListReminders()
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d reminders, want 3", len(all))
	}
	want := []string{"early", "mid", "late"}
	for i, r := range all {
		if r.ReminderID != want[i] {
			t.Errorf("all[%d].ReminderID = %q, want %q", i, r.ReminderID, want[i])
		}
	}
}

func TestTimezoneRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetTimezone(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTimezone before set = %v, want ErrNotFound", err)
	}

	if err := s.SetTimezone(1, "Ada", "Europe/London"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}
	tz, err := s.GetTimezone(1)
	if err != nil {
		t.Fatalf("GetTimezone: %v", err)
	}
	if tz != "Europe/London" {
		t.Errorf("tz = %q", tz)
	}

	// A second set replaces the stored zone.
	if err := s.SetTimezone(1, "Ada", "Asia/Tokyo"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}
	tz, err = s.GetTimezone(1)
	if err != nil {
		t.Fatalf("GetTimezone: %v", err)
	}
	if tz != "Asia/Tokyo" {
		t.Errorf("tz = %q", tz)
	}
}
