package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// LedgerMetrics содержит метрики складского журнала.
type LedgerMetrics struct {
	adjustments *prometheus.CounterVec
	rejections  prometheus.Counter
	lowStock    prometheus.Counter
}

// NewLedgerMetrics регистрирует метрики в DefaultRegisterer.
func NewLedgerMetrics() *LedgerMetrics {
	return NewLedgerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLedgerMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewLedgerMetricsWithRegisterer(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LedgerMetrics{
		adjustments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shiftlab_stock_adjustments_total",
			Help: "Total number of stock adjustments written, grouped by reason.",
		}, []string{"reason"}),
		rejections: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shiftlab_stock_insufficient_total",
			Help: "Total number of stock reservations rejected for insufficient stock.",
		}),
		lowStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shiftlab_stock_low_events_total",
			Help: "Total number of times an item crossed its reorder threshold.",
		}),
	}
}

// RecordAdjustments учитывает записанные строки журнала.
func (m *LedgerMetrics) RecordAdjustments(reason domain.AdjustmentReason, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.adjustments.WithLabelValues(string(reason)).Add(float64(count))
}

// RecordInsufficient учитывает отказ в резервировании.
func (m *LedgerMetrics) RecordInsufficient() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}

// RecordLowStock учитывает переход позиции через порог дозаказа.
func (m *LedgerMetrics) RecordLowStock() {
	if m == nil {
		return
	}
	m.lowStock.Inc()
}
