package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics содержит метрики transactional outbox: исходы публикаций
// и возраст бэклога.
type OutboxMetrics struct {
	publishAttempts  *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics создаёт и регистрирует метрики outbox. Повторная
// регистрация переиспользует уже существующие коллекторы.
func NewOutboxMetrics() *OutboxMetrics {
	return newOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		pendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ecom_outbox_pending_records",
			Help: "Current number of pending records in the transactional outbox",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ecom_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
	}
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

// RecordPublishResult увеличивает счётчик публикаций с указанным исходом.
func (m *OutboxMetrics) RecordPublishResult(result string) {
	m.publishAttempts.WithLabelValues(result).Inc()
}

// SetBacklog публикует размер бэклога и возраст самой старой записи.
func (m *OutboxMetrics) SetBacklog(pending int, oldestPendingAt time.Time) {
	m.pendingRecords.Set(float64(pending))
	if pending == 0 || oldestPendingAt.IsZero() {
		m.oldestPendingAge.Set(0)
		return
	}
	age := time.Since(oldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	m.oldestPendingAge.Set(age)
}
