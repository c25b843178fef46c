package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// Операции жизненного цикла заказа для меток.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpVoid    = "void"
	OpRestock = "restock"
)

// LifecycleMetrics содержит метрики операций над сервисными заказами.
type LifecycleMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	revenue    prometheus.Counter
}

// NewLifecycleMetrics регистрирует метрики в DefaultRegisterer.
func NewLifecycleMetrics() *LifecycleMetrics {
	return NewLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLifecycleMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shiftlab_order_operations_total",
			Help: "Total number of service order operations grouped by operation and result.",
		}, []string{"operation", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shiftlab_order_operation_duration_seconds",
			Help:    "Duration of service order operations in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shiftlab_order_operations_in_flight",
			Help: "Number of service order operations currently running.",
		}),
		revenue: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shiftlab_order_revenue_minor_total",
			Help: "Sum of totals of created service orders in minor currency units.",
		}),
	}
}

// Start отмечает начало операции и возвращает функцию завершения.
func (m *LifecycleMetrics) Start(operation string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	started := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
		m.operations.WithLabelValues(operation, ResultLabel(err)).Inc()
	}
}

// RecordRevenue учитывает итог созданного заказа.
func (m *LifecycleMetrics) RecordRevenue(total domain.Money) {
	if m == nil || total <= 0 {
		return
	}
	m.revenue.Add(float64(total.Minor()))
}

// ResultLabel сводит ошибку к метке результата.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsValidation(err):
		return "validation"
	case domain.IsNotFound(err):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case domain.IsConcurrentModification(err):
		return "conflict"
	case errors.Is(err, domain.ErrOrderVoided):
		return "voided"
	case domain.IsStorageUnavailable(err):
		return "storage_unavailable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
