package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics содержит метрики движка заказов: чекаут-сага,
// переходы статусов, webhook'и шлюза и компенсации.
type EngineMetrics struct {
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutFailed    prometheus.Counter
	checkoutDuration  prometheus.Histogram

	transitionConflicts prometheus.Counter
	ordersCancelled     prometheus.Counter

	webhookApplied prometheus.Counter
	webhookIgnored prometheus.Counter

	compensations *prometheus.CounterVec
}

// NewEngineMetrics создаёт и регистрирует метрики движка.
func NewEngineMetrics() *EngineMetrics {
	return newEngineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newEngineMetricsWithRegisterer(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &EngineMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_checkout_started_total",
			Help: "Total number of checkout attempts started",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_checkout_completed_total",
			Help: "Total number of checkouts that produced a pending order",
		}),
		checkoutFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_checkout_failed_total",
			Help: "Total number of checkouts rejected or unwound",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ecom_checkout_duration_seconds",
			Help:    "Duration of checkout attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		transitionConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_order_transition_conflicts_total",
			Help: "Total number of optimistic-locking conflicts during status transitions",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_orders_cancelled_total",
			Help: "Total number of orders moved to cancelled",
		}),
		webhookApplied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_payment_webhook_applied_total",
			Help: "Total number of gateway callbacks that changed order state",
		}),
		webhookIgnored: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ecom_payment_webhook_ignored_total",
			Help: "Total number of duplicate or late gateway callbacks acknowledged without effect",
		}),
		compensations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ecom_compensations_total",
			Help: "Total number of saga compensations grouped by kind",
		}, []string{"kind"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCheckoutStarted увеличивает счётчик начатых чекаутов.
func (m *EngineMetrics) RecordCheckoutStarted() { m.checkoutStarted.Inc() }

// RecordCheckoutCompleted увеличивает счётчик успешных чекаутов.
func (m *EngineMetrics) RecordCheckoutCompleted() { m.checkoutCompleted.Inc() }

// RecordCheckoutFailed увеличивает счётчик отклонённых чекаутов.
func (m *EngineMetrics) RecordCheckoutFailed() { m.checkoutFailed.Inc() }

// RecordCheckoutDuration записывает длительность чекаута.
func (m *EngineMetrics) RecordCheckoutDuration(d time.Duration) {
	m.checkoutDuration.Observe(d.Seconds())
}

// RecordTransitionConflict увеличивает счётчик конфликтов optimistic locking.
func (m *EngineMetrics) RecordTransitionConflict() { m.transitionConflicts.Inc() }

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *EngineMetrics) RecordOrderCancelled() { m.ordersCancelled.Inc() }

// RecordWebhookApplied увеличивает счётчик применённых callback'ов.
func (m *EngineMetrics) RecordWebhookApplied() { m.webhookApplied.Inc() }

// RecordWebhookIgnored увеличивает счётчик проигнорированных callback'ов.
func (m *EngineMetrics) RecordWebhookIgnored() { m.webhookIgnored.Inc() }

// RecordCompensation увеличивает счётчик компенсаций указанного вида.
func (m *EngineMetrics) RecordCompensation(kind string) {
	m.compensations.WithLabelValues(kind).Inc()
}
