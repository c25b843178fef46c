package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/metrics"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shiftlab/internal/storage/memory"
)

var scanNow = time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)

type stubSource struct {
	mu     sync.Mutex
	alerts []lifecycle.ServiceAlert
	err    error
	calls  int
	days   int
	km     int
	called chan struct{}
}

func (s *stubSource) Upcoming(_ context.Context, daysAhead, kmAhead int) ([]lifecycle.ServiceAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.days, s.km = daysAhead, kmAhead
	if s.called != nil {
		select {
		case s.called <- struct{}{}:
		default:
		}
	}
	return s.alerts, s.err
}

type stubLocker struct {
	ok       bool
	err      error
	released int
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func(context.Context) error {
		l.released++
		return nil
	}, true, nil
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func testAlerts() []lifecycle.ServiceAlert {
	return []lifecycle.ServiceAlert{
		{VehicleID: "vehicle-1", ClientID: "client-1", Plate: "ABC-123", OrderID: "order-1", DaysRemaining: intPtr(-2), Urgent: true},
		{VehicleID: "vehicle-2", OrderID: "order-2", KmRemaining: int64Ptr(400)},
	}
}

func newTestScanner(t *testing.T, source UpcomingSource, outbox domain.OutboxWriter, clock *time.Time, options ...Option) *Scanner {
	t.Helper()
	options = append([]Option{WithClock(func() time.Time { return *clock })}, options...)
	scanner, err := NewScanner(source, outbox, options...)
	require.NoError(t, err)
	return scanner
}

func TestScanOnce_EnqueuesReminders(t *testing.T) {
	source := &stubSource{alerts: testAlerts()}
	outbox := memory.NewOutboxRepository()
	locker := &stubLocker{ok: true}
	now := scanNow
	scanner := newTestScanner(t, source, outbox, &now, WithLocker(locker), WithWindow(14, 500))

	result, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 2, Enqueued: 2}, result)
	assert.Equal(t, 14, source.days)
	assert.Equal(t, 500, source.km)
	assert.Equal(t, 1, locker.released)

	pending := outbox.AllPending()
	require.Len(t, pending, 2)
	assert.Equal(t, domain.EventServiceReminderDue, pending[0].EventType)
	assert.Equal(t, domain.AggregateVehicle, pending[0].AggregateType)
	assert.Equal(t, "vehicle-1", pending[0].AggregateID)

	var payload domain.ReminderEventPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, "order-1", payload.OrderID)
	assert.Equal(t, "ABC-123", payload.Plate)
	require.NotNil(t, payload.DaysRemaining)
	assert.Equal(t, -2, *payload.DaysRemaining)
	assert.Nil(t, payload.KmRemaining)
	assert.True(t, payload.Urgent)
}

func TestScanOnce_OneReminderPerOrderPerDay(t *testing.T) {
	source := &stubSource{alerts: testAlerts()}
	outbox := memory.NewOutboxRepository()
	now := scanNow
	scanner := newTestScanner(t, source, outbox, &now)

	_, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)

	now = scanNow.Add(4 * time.Hour)
	result, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 2, Enqueued: 0}, result)

	now = scanNow.Add(24 * time.Hour)
	result, err = scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Enqueued, "next day reminders are sent again")
	assert.Len(t, outbox.AllPending(), 4)
}

func TestScanOnce_SecondInstanceDoesNotRepeatReminders(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	now := scanNow

	first := newTestScanner(t, &stubSource{alerts: testAlerts()}, outbox, &now)
	result, err := first.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Enqueued)
	for _, msg := range outbox.AllPending() {
		require.NoError(t, outbox.MarkSent(context.Background(), msg.ID))
	}

	now = scanNow.Add(2 * time.Hour)
	restarted := newTestScanner(t, &stubSource{alerts: testAlerts()}, outbox, &now)
	result, err = restarted.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 2, Enqueued: 0}, result)
	assert.Empty(t, outbox.AllPending())
}

func TestReminderMessageID(t *testing.T) {
	id := ReminderMessageID("order-1", "2026-03-10")
	assert.Equal(t, id, ReminderMessageID("order-1", "2026-03-10"))
	assert.NotEqual(t, id, ReminderMessageID("order-1", "2026-03-11"))
	assert.NotEqual(t, id, ReminderMessageID("order-2", "2026-03-10"))
}

func TestScanOnce_SkippedWhenLockHeld(t *testing.T) {
	source := &stubSource{alerts: testAlerts()}
	reg := prometheus.NewRegistry()
	now := scanNow
	scanner := newTestScanner(t, source, memory.NewOutboxRepository(), &now,
		WithLocker(&stubLocker{ok: false}),
		WithMetrics(metrics.NewReminderMetricsWithRegisterer(reg)),
	)

	result, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, source.calls)
}

func TestScanOnce_Errors(t *testing.T) {
	now := scanNow

	t.Run("lock error", func(t *testing.T) {
		scanner := newTestScanner(t, &stubSource{}, memory.NewOutboxRepository(), &now,
			WithLocker(&stubLocker{err: errors.New("redis down")}))
		_, err := scanner.ScanOnce(context.Background())
		require.Error(t, err)
	})

	t.Run("source error", func(t *testing.T) {
		locker := &stubLocker{ok: true}
		scanner := newTestScanner(t, &stubSource{err: domain.ErrStorageUnavailable}, memory.NewOutboxRepository(), &now,
			WithLocker(locker))
		_, err := scanner.ScanOnce(context.Background())
		require.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.Equal(t, 1, locker.released, "lock is released on failure")
	})

	t.Run("enqueue error retries next scan", func(t *testing.T) {
		outbox := &failingOutbox{failures: 1}
		scanner := newTestScanner(t, &stubSource{alerts: testAlerts()[:1]}, outbox, &now)

		_, err := scanner.ScanOnce(context.Background())
		require.Error(t, err)

		result, err := scanner.ScanOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Enqueued)
	})
}

func TestNewScanner_Validation(t *testing.T) {
	_, err := NewScanner(nil, memory.NewOutboxRepository())
	require.Error(t, err)

	_, err = NewScanner(&stubSource{}, memory.NewOutboxRepository(), WithSchedule("not a cron"))
	require.Error(t, err)

	scanner, err := NewScanner(&stubSource{}, memory.NewOutboxRepository(), WithLock(" ", 0))
	require.NoError(t, err)
	assert.Equal(t, defaultLockKey, scanner.lockKey)
	assert.Equal(t, defaultLockTTL, scanner.lockTTL)
	assert.Equal(t, DefaultSchedule, scanner.schedule)
}

func TestRun_ScansOnScheduleAndStops(t *testing.T) {
	source := &stubSource{called: make(chan struct{}, 1)}
	scanner, err := NewScanner(source, memory.NewOutboxRepository(), WithSchedule("@every 1s"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scanner.Run(ctx) }()

	select {
	case <-source.called:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled scan did not run")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop")
	}
}

func TestLocalLocker(t *testing.T) {
	release, ok, err := LocalLocker{}.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, release(context.Background()))

	_, _, err = (*RedisLocker)(nil).TryLock(context.Background(), "k", time.Second)
	require.Error(t, err)
}

type failingOutbox struct {
	failures int
	enqueued []domain.OutboxMessage
}

func (f *failingOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if f.failures > 0 {
		f.failures--
		return domain.OutboxMessage{}, domain.ErrStorageUnavailable
	}
	f.enqueued = append(f.enqueued, msg)
	return msg, nil
}
