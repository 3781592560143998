package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetricsPublishResults(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newOutboxMetricsWithRegisterer(registry)

	m.RecordPublishResult("sent")
	m.RecordPublishResult("sent")
	m.RecordPublishResult("retry_error")
	m.RecordPublishResult("failed")

	if got := testutil.ToFloat64(m.publishAttempts.WithLabelValues("sent")); got != 2 {
		t.Fatalf("sent attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.publishAttempts.WithLabelValues("retry_error")); got != 1 {
		t.Fatalf("retry_error attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.publishAttempts.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed attempts = %v, want 1", got)
	}
}

func TestOutboxMetricsBacklog(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newOutboxMetricsWithRegisterer(registry)

	m.SetBacklog(3, time.Now().Add(-2*time.Second))
	if got := testutil.ToFloat64(m.pendingRecords); got != 3 {
		t.Fatalf("pending records = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.oldestPendingAge); got < 2 {
		t.Fatalf("oldest pending age = %v, want >= 2s", got)
	}

	// Пустой бэклог обнуляет возраст.
	m.SetBacklog(0, time.Time{})
	if got := testutil.ToFloat64(m.oldestPendingAge); got != 0 {
		t.Fatalf("oldest pending age = %v, want 0", got)
	}
}

// Повторное создание метрик outbox переиспользует коллекторы: worker
// может пересоздаваться без паники на re-register.
func TestOutboxMetricsReregister(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newOutboxMetricsWithRegisterer(registry)
	second := newOutboxMetricsWithRegisterer(registry)

	first.RecordPublishResult("sent")
	second.RecordPublishResult("sent")

	if got := testutil.ToFloat64(first.publishAttempts.WithLabelValues("sent")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}
