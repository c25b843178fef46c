package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics содержит метрики воркера публикации outbox.
type OutboxMetrics struct {
	attempts         *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetricsWithRegisterer регистрирует метрики outbox в переданном registerer.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shiftlab_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shiftlab_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shiftlab_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
	}
}

// RecordAttempt учитывает попытку публикации с результатом sent, retry_error, failed или dlq_failed.
func (m *OutboxMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер backlog и возраст самого старого сообщения.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.pendingRecords.Set(float64(pending))
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.oldestPendingAge.Set(oldestAge.Seconds())
}

// CleanupMetrics содержит метрики очистки ключей идемпотентности.
type CleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewCleanupMetricsWithRegisterer регистрирует метрики очистки в переданном registerer.
func NewCleanupMetricsWithRegisterer(registerer prometheus.Registerer) *CleanupMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CleanupMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shiftlab_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shiftlab_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shiftlab_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
	}
}

// RecordRun учитывает завершённый цикл очистки.
func (m *CleanupMetrics) RecordRun(result string, deleted int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	if result == "ok" {
		m.lastDeleted.Set(float64(deleted))
	}
}

// RecordDeleted учитывает удалённые записи одного батча.
func (m *CleanupMetrics) RecordDeleted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.deleted.Add(float64(count))
}

// ReminderMetrics содержит метрики сканера напоминаний.
type ReminderMetrics struct {
	scans     *prometheus.CounterVec
	reminders prometheus.Counter
	lastDue   prometheus.Gauge
}

// NewReminderMetricsWithRegisterer регистрирует метрики напоминаний в переданном registerer.
func NewReminderMetricsWithRegisterer(registerer prometheus.Registerer) *ReminderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReminderMetrics{
		scans: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shiftlab_reminder_scans_total",
			Help: "Total number of upcoming-service scans grouped by result.",
		}, []string{"result"}),
		reminders: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shiftlab_reminder_events_total",
			Help: "Total number of service reminder events enqueued.",
		}),
		lastDue: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shiftlab_reminder_last_due_vehicles",
			Help: "Number of vehicles due for service found by the last scan.",
		}),
	}
}

// RecordScan учитывает цикл сканирования: result = ok, error или skipped.
func (m *ReminderMetrics) RecordScan(result string, due, enqueued int) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(result).Inc()
	if result != "ok" {
		return
	}
	m.lastDue.Set(float64(due))
	if enqueued > 0 {
		m.reminders.Add(float64(enqueued))
	}
}

// AlertMetrics считает обработанные сообщения из Kafka.
type AlertMetrics struct {
	handled *prometheus.CounterVec
}

// NewAlertMetricsWithRegisterer регистрирует метрики обработчика событий.
func NewAlertMetricsWithRegisterer(registerer prometheus.Registerer) *AlertMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &AlertMetrics{
		handled: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shiftlab_alert_events_total",
			Help: "Total number of consumed alert events grouped by event type.",
		}, []string{"event_type"}),
	}
}

// RecordHandled учитывает обработанное событие.
func (m *AlertMetrics) RecordHandled(eventType string) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(eventType).Inc()
}
