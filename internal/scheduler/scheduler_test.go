package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shim2k/SenteAI/internal/storage"
)

// memStore is an in-memory ReminderStore.
type memStore struct {
	mu      sync.Mutex
	recs    map[string]storage.Reminder
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]storage.Reminder)}
}

func (m *memStore) key(userID int64, reminderID string) string {
	return fmt.Sprintf("%d/%s", userID, reminderID)
}

func (m *memStore) SaveReminder(r storage.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.recs[m.key(r.UserID, r.ReminderID)] = r
	return nil
}

func (m *memStore) ListReminders() ([]storage.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Reminder, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) DeleteReminder(userID int64, reminderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(userID, reminderID)
	if _, ok := m.recs[k]; !ok {
		return storage.ErrNotFound
	}
	delete(m.recs, k)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

// memNotifier records deliveries and can be set to fail.
type memNotifier struct {
	mu        sync.Mutex
	delivered []string
	err       error
}

func (n *memNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.delivered = append(n.delivered, fmt.Sprintf("%d:%s", chatID, text))
	return nil
}

func (n *memNotifier) deliveries() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.delivered...)
}

func testReminder(clk clock.Clock, id string, in time.Duration) storage.Reminder {
	return storage.Reminder{
		UserID:           7,
		ChatID:           42,
		ReminderID:       id,
		ReminderText:     "call mom",
		NotificationText: "Call your mother now",
		NotifyAt:         clk.Now().Add(in),
	}
}

func TestAddFiresAtScheduledTime(t *testing.T) {
	clk := clock.NewMock()
	store := newMemStore()
	notifier := &memNotifier{}
	s := NewWithClock(store, notifier, clk)

	require.NoError(t, s.Add(testReminder(clk, "r1", time.Hour)))
	require.True(t, s.Scheduled(7, "r1"))
	require.Equal(t, 1, store.count())

	clk.Add(59 * time.Minute)
	assert.Empty(t, notifier.deliveries(), "fired early")

	clk.Add(2 * time.Minute)
	require.Equal(t, []string{"42:Call your mother now"}, notifier.deliveries())
	assert.False(t, s.Scheduled(7, "r1"))
	assert.Equal(t, 0, store.count(), "delivered record not deleted")
}

func TestCancelPreventsFire(t *testing.T) {
	clk := clock.NewMock()
	store := newMemStore()
	notifier := &memNotifier{}
	s := NewWithClock(store, notifier, clk)

	require.NoError(t, s.Add(testReminder(clk, "r1", time.Hour)))

	found, err := s.Cancel(7, "r1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, store.count())

	// Even once the original time elapses, nothing fires.
	clk.Add(2 * time.Hour)
	assert.Empty(t, notifier.deliveries())
}

func TestCancelUnknownIsNoOp(t *testing.T) {
	s := NewWithClock(newMemStore(), &memNotifier{}, clock.NewMock())

	found, err := s.Cancel(7, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAddPersistFailureDoesNotArm(t *testing.T) {
	clk := clock.NewMock()
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	notifier := &memNotifier{}
	s := NewWithClock(store, notifier, clk)

	err := s.Add(testReminder(clk, "r1", time.Minute))
	require.Error(t, err)
	assert.False(t, s.Scheduled(7, "r1"))

	clk.Add(time.Hour)
	assert.Empty(t, notifier.deliveries())
}

func TestAddSameIDReplaces(t *testing.T) {
	clk := clock.NewMock()
	store := newMemStore()
	notifier := &memNotifier{}
	s := NewWithClock(store, notifier, clk)

	require.NoError(t, s.Add(testReminder(clk, "r1", time.Hour)))

	later := testReminder(clk, "r1", 3*time.Hour)
	later.NotificationText = "second version"
	require.NoError(t, s.Add(later))
	require.Equal(t, 1, store.count())

	clk.Add(90 * time.Minute)
	assert.Empty(t, notifier.deliveries(), "replaced timer still fired")

	clk.Add(2 * time.Hour)
	assert.Equal(t, []string{"42:second version"}, notifier.deliveries())
}

func TestReconcileArmsAllFutureReminders(t *testing.T) {
	clk := clock.NewMock()
	store := newMemStore()
	notifier := &memNotifier{}

	for i := range 3 {
		rec := testReminder(clk, fmt.Sprintf("r%d", i), time.Duration(i+1)*time.Hour)
		rec.NotificationText = fmt.Sprintf("n%d", i)
		require.NoError(t, store.SaveReminder(rec))
	}

	s := NewWithClock(store, notifier, clk)
	require.NoError(t, s.Reconcile())

	for i := range 3 {
		assert.True(t, s.Scheduled(7, fmt.Sprintf("r%d", i)))
	}

	clk.Add(4 * time.Hour)
	assert.Len(t, notifier.deliveries(), 3, "want exactly one delivery per reminder")
	assert.Equal(t, 0, store.count())
}

func TestReconcilePastDueFiresImmediately(t *testing.T) {
	clk := clock.NewMock()
	store := newMemStore()
	notifier := &memNotifier{}

	rec := testReminder(clk, "late", -time.Hour)
	require.NoError(t, store.SaveReminder(rec))

	s := NewWithClock(store, notifier, clk)
	require.NoError(t, s.Reconcile())

	clk.Add(time.Millisecond)
	assert.Equal(t, []string{"42:Call your mother now"}, notifier.deliveries())
	assert.Equal(t, 0, store.count())
}

func TestFailedDeliveryKeepsRecordForRetry(t *testing.T) {
	clk := clock.NewMock()
	store := newMemStore()
	notifier := &memNotifier{err: errors.New("gateway down")}
	s := NewWithClock(store, notifier, clk)

	require.NoError(t, s.Add(testReminder(clk, "r1", time.Minute)))
	clk.Add(2 * time.Minute)

	assert.Empty(t, notifier.deliveries())
	require.Equal(t, 1, store.count(), "failed delivery must retain the record")
	assert.False(t, s.Scheduled(7, "r1"))

	// A restart-time reconciliation retries it once the gateway recovers.
	notifier.err = nil
	s2 := NewWithClock(store, notifier, clk)
	require.NoError(t, s2.Reconcile())
	clk.Add(time.Millisecond)

	assert.Equal(t, []string{"42:Call your mother now"}, notifier.deliveries())
	assert.Equal(t, 0, store.count())
}

func TestStopDisarmsTimersKeepsRecords(t *testing.T) {
	clk := clock.NewMock()
	store := newMemStore()
	notifier := &memNotifier{}
	s := NewWithClock(store, notifier, clk)

	require.NoError(t, s.Add(testReminder(clk, "r1", time.Minute)))
	s.Stop()

	clk.Add(time.Hour)
	assert.Empty(t, notifier.deliveries())
	assert.Equal(t, 1, store.count())
}
