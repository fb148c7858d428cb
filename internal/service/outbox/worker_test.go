package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
)

func enqueue(t *testing.T, repo *memory.OutboxRepository, eventType string) {
	t.Helper()

	_, err := repo.Enqueue(domain.OutboxEvent{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     eventType,
		Topic:         "orders",
		PartitionKey:  "order-1",
		Payload:       []byte(`{}`),
		SourceService: "order-service",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

type countingPublisher struct {
	mu    sync.Mutex
	err   error
	seen  []string
	count int
}

func (p *countingPublisher) Publish(event domain.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	p.seen = append(p.seen, event.EventType)
	return p.err
}

func TestWorker_ProcessOnce_PublishesBatch(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "order.created")
	enqueue(t, repo, "order.confirmed")

	publisher := &countingPublisher{}
	worker := NewWorker(repo, publisher)

	full := worker.ProcessOnce(context.Background())
	if full {
		t.Fatal("expected partial batch")
	}
	if publisher.count != 2 {
		t.Fatalf("publish calls = %d, want 2", publisher.count)
	}

	stats, _ := repo.Stats()
	if stats.PendingCount != 0 {
		t.Fatalf("pending = %d after publish, want 0", stats.PendingCount)
	}
}

func TestWorker_ProcessOnce_ReportsFullBatch(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	for i := 0; i < 3; i++ {
		enqueue(t, repo, "order.created")
	}

	worker := NewWorker(repo, &countingPublisher{}, WithBatchSize(2))

	if full := worker.ProcessOnce(context.Background()); !full {
		t.Fatal("expected full batch on first pass")
	}
	if full := worker.ProcessOnce(context.Background()); full {
		t.Fatal("expected partial batch on second pass")
	}
}

func TestWorker_ProcessOnce_FailsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "order.created")

	publisher := &countingPublisher{err: errors.New("broker unavailable")}
	worker := NewWorker(repo, publisher, WithMaxAttempts(2))

	worker.ProcessOnce(context.Background())
	worker.ProcessOnce(context.Background())

	if publisher.count != 2 {
		t.Fatalf("publish calls = %d, want 2", publisher.count)
	}

	stats, _ := repo.Stats()
	if stats.FailedCount != 1 || stats.PendingCount != 0 {
		t.Fatalf("stats = %+v, want 1 failed / 0 pending", stats)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	worker := NewWorker(repo, &countingPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
