package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/storage/memory"
)

// stubPublisher считает публикации и отказывает первые failFirst раз.
type stubPublisher struct {
	failFirst int
	calls     int
	published []domain.OutboxMessage
}

func (p *stubPublisher) Publish(msg domain.OutboxMessage) error {
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, msg)
	return nil
}

func TestWorkerPublishesAndMarksSent(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{}
	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order", AggregateID: "o1", EventType: domain.EventOrderCreated, Payload: []byte(`{"order_id":"o1"}`),
	})
	require.NoError(t, err)

	worker.ProcessOnce(context.Background())

	require.Len(t, publisher.published, 1)
	require.Equal(t, msg.ID, publisher.published[0].ID)

	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestWorkerRetriesTransientFailure(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{failFirst: 2}
	worker := NewWorker(repo, publisher, WithMaxAttempts(3), WithRetryBaseDelay(0))

	_, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order", AggregateID: "o1", EventType: domain.EventOrderCreated, Payload: []byte(`{}`),
	})
	require.NoError(t, err)

	worker.ProcessOnce(context.Background())

	require.Equal(t, 3, publisher.calls)
	require.Len(t, publisher.published, 1)
}

func TestWorkerRoutesToDLQAfterExhaustedRetries(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{failFirst: 100}
	dlq := &stubPublisher{}
	worker := NewWorker(repo, publisher,
		WithMaxAttempts(2),
		WithRetryBaseDelay(0),
		WithDLQPublisher(dlq),
	)

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order", AggregateID: "o1", EventType: domain.EventOrderCreated, Payload: []byte(`{"order_id":"o1"}`),
	})
	require.NoError(t, err)

	worker.ProcessOnce(context.Background())

	require.Equal(t, 2, publisher.calls)
	require.Len(t, dlq.published, 1)
	require.Equal(t, msg.ID, dlq.published[0].ID)
	require.Contains(t, string(dlq.published[0].Payload), "broker unavailable")

	// Сообщение помечено failed и не раздаётся повторно.
	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestWorkerStopsOnCancelledContext(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{}
	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))

	_, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order", AggregateID: "o1", EventType: domain.EventOrderCreated, Payload: []byte(`{}`),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker.ProcessOnce(ctx)

	require.Zero(t, publisher.calls)
}
