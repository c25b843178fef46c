// Package reminder по расписанию ищет автомобили, которым подходит срок замены масла,
// и ставит события service.reminder_due в outbox.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/metrics"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/lifecycle"
)

const (
	// DefaultSchedule — каждый день в 08:00 по времени мастерской.
	DefaultSchedule = "0 8 * * *"
	defaultLockKey  = "shiftlab:reminder-scan"
	defaultLockTTL  = 5 * time.Minute
)

// UpcomingSource отдаёт автомобили, которым скоро нужно обслуживание.
type UpcomingSource interface {
	Upcoming(ctx context.Context, daysAhead, kmAhead int) ([]lifecycle.ServiceAlert, error)
}

// Options задаёт параметры сканера.
type Options struct {
	Logger    *log.Entry
	Metrics   *metrics.ReminderMetrics
	Locker    Locker
	Schedule  string
	DaysAhead int
	KmAhead   int
	LockKey   string
	LockTTL   time.Duration
	Location  *time.Location
	Clock     func() time.Time
}

// Option настраивает Scanner.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics задаёт метрики сканера.
func WithMetrics(m *metrics.ReminderMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithLocker задаёт распределённую блокировку между репликами.
func WithLocker(locker Locker) Option {
	return func(o *Options) { o.Locker = locker }
}

// WithSchedule задаёт cron-выражение из пяти полей.
func WithSchedule(spec string) Option {
	return func(o *Options) { o.Schedule = spec }
}

// WithWindow задаёт окно напоминаний в днях и километрах.
func WithWindow(daysAhead, kmAhead int) Option {
	return func(o *Options) {
		o.DaysAhead = daysAhead
		o.KmAhead = kmAhead
	}
}

// WithLock задаёт ключ и TTL блокировки.
func WithLock(key string, ttl time.Duration) Option {
	return func(o *Options) {
		if strings.TrimSpace(key) != "" {
			o.LockKey = key
		}
		if ttl > 0 {
			o.LockTTL = ttl
		}
	}
}

// WithLocation задаёт часовой пояс расписания.
func WithLocation(loc *time.Location) Option {
	return func(o *Options) { o.Location = loc }
}

// WithClock подменяет часы.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) { o.Clock = clock }
}

// ScanResult — итог одного прохода.
type ScanResult struct {
	Due      int
	Enqueued int
	// Skipped означает, что проход выполняет другая реплика.
	Skipped bool
}

// Scanner ищет автомобили, которым пора на замену масла.
type Scanner struct {
	source   UpcomingSource
	outbox   domain.OutboxWriter
	locker   Locker
	logger   *log.Entry
	metrics  *metrics.ReminderMetrics
	schedule string
	days     int
	km       int
	lockKey  string
	lockTTL  time.Duration
	location *time.Location
	clock    func() time.Time
}

// NewScanner создаёт сканер. Ошибка возвращается для некорректного cron-выражения или окна.
func NewScanner(source UpcomingSource, outbox domain.OutboxWriter, options ...Option) (*Scanner, error) {
	if source == nil || outbox == nil {
		return nil, errors.New("reminder scanner requires upcoming source and outbox")
	}

	opts := Options{
		Schedule:  DefaultSchedule,
		DaysAhead: lifecycle.DefaultAlertDays,
		KmAhead:   lifecycle.DefaultAlertKm,
		LockKey:   defaultLockKey,
		LockTTL:   defaultLockTTL,
	}
	for _, option := range options {
		option(&opts)
	}

	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", opts.Schedule, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reminder-scanner")
	}
	locker := opts.Locker
	if locker == nil {
		locker = LocalLocker{}
	}
	location := opts.Location
	if location == nil {
		location = time.UTC
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Scanner{
		source:   source,
		outbox:   outbox,
		locker:   locker,
		logger:   logger,
		metrics:  opts.Metrics,
		schedule: opts.Schedule,
		days:     opts.DaysAhead,
		km:       opts.KmAhead,
		lockKey:  opts.LockKey,
		lockTTL:  opts.LockTTL,
		location: location,
		clock:    clock,
	}, nil
}

// Run выполняет сканирование по расписанию до отмены ctx.
func (s *Scanner) Run(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(s.logger)
	scheduler := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := scheduler.AddFunc(s.schedule, func() {
		if _, err := s.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Warn("reminder scan failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule reminder scan: %w", err)
	}

	scheduler.Start()
	s.logger.WithField("schedule", s.schedule).Info("reminder scanner started")

	<-ctx.Done()
	<-scheduler.Stop().Done()
	s.logger.Info("reminder scanner stopped")
	return nil
}

// ScanOnce выполняет один проход: находит автомобили в окне и ставит напоминания в outbox.
// По одному заказу напоминание уходит не чаще раза в день: ID сообщения выводится из
// заказа и дня, и outbox отклоняет повтор даже после рестарта или с другой реплики.
func (s *Scanner) ScanOnce(ctx context.Context) (result ScanResult, err error) {
	release, ok, err := s.locker.TryLock(ctx, s.lockKey, s.lockTTL)
	if err != nil {
		s.metrics.RecordScan("error", 0, 0)
		return result, err
	}
	if !ok {
		result.Skipped = true
		s.metrics.RecordScan("skipped", 0, 0)
		s.logger.Debug("reminder scan is running on another replica")
		return result, nil
	}
	defer func() {
		if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
			s.logger.WithError(releaseErr).Warn("failed to release reminder lock")
		}
	}()

	alerts, err := s.source.Upcoming(ctx, s.days, s.km)
	if err != nil {
		s.metrics.RecordScan("error", 0, 0)
		return result, fmt.Errorf("load upcoming services: %w", err)
	}
	result.Due = len(alerts)

	now := s.clock()
	today := now.In(s.location).Format(time.DateOnly)
	for _, alert := range alerts {
		msg, err := domain.NewOutboxMessage(domain.AggregateVehicle, alert.VehicleID, domain.EventServiceReminderDue,
			domain.ReminderEventPayload{
				VehicleID:     alert.VehicleID,
				ClientID:      alert.ClientID,
				Plate:         alert.Plate,
				OrderID:       alert.OrderID,
				DaysRemaining: alert.DaysRemaining,
				KmRemaining:   alert.KmRemaining,
				Urgent:        alert.Urgent,
				OccurredAt:    now,
			})
		if err == nil {
			msg.ID = ReminderMessageID(alert.OrderID, today)
			_, err = s.outbox.Enqueue(ctx, msg)
		}
		if errors.Is(err, domain.ErrDuplicate) {
			continue
		}
		if err != nil {
			s.metrics.RecordScan("error", result.Due, result.Enqueued)
			return result, fmt.Errorf("enqueue reminder for vehicle %s: %w", alert.VehicleID, err)
		}
		result.Enqueued++
	}

	s.metrics.RecordScan("ok", result.Due, result.Enqueued)
	s.logger.WithFields(log.Fields{
		"due":      result.Due,
		"enqueued": result.Enqueued,
	}).Info("reminder scan completed")
	return result, nil
}

// ReminderMessageID возвращает ID outbox-сообщения о напоминании по заказу за день (YYYY-MM-DD).
func ReminderMessageID(orderID, day string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("shiftlab:reminder:"+orderID+":"+day)).String()
}
