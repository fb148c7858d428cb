package memory

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

func makeOutboxEvent(eventType string) domain.OutboxEvent {
	return domain.OutboxEvent{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     eventType,
		Topic:         "orders",
		PartitionKey:  "order-1",
		Payload:       []byte(`{}`),
		SourceService: "order-service",
	}
}

func TestOutboxProcessPending_PublishesInOrder(t *testing.T) {
	repo := NewOutboxRepository()
	for _, et := range []string{"order.created", "order.confirmed", "order.cancelled"} {
		if _, err := repo.Enqueue(makeOutboxEvent(et)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	var published []string
	result, err := repo.ProcessPending(10, 5, func(e domain.OutboxEvent) error {
		published = append(published, e.EventType)
		return nil
	})
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if result.Published != 3 || result.Processed != 3 {
		t.Fatalf("result = %+v, want 3 published", result)
	}
	want := []string{"order.created", "order.confirmed", "order.cancelled"}
	for i, et := range want {
		if published[i] != et {
			t.Fatalf("published[%d] = %s, want %s", i, published[i], et)
		}
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("pending = %d after publish, want 0", stats.PendingCount)
	}
}

func TestOutboxProcessPending_RetriesThenFails(t *testing.T) {
	repo := NewOutboxRepository()
	if _, err := repo.Enqueue(makeOutboxEvent("order.created")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	brokerDown := errors.New("broker unavailable")
	attempts := 0

	for i := 0; i < 3; i++ {
		result, err := repo.ProcessPending(10, 3, func(domain.OutboxEvent) error {
			attempts++
			return brokerDown
		})
		if err != nil {
			t.Fatalf("process pending: %v", err)
		}

		if i < 2 {
			if result.Retried != 1 {
				t.Fatalf("pass %d: retried = %d, want 1", i, result.Retried)
			}
		} else {
			if len(result.Failed) != 1 {
				t.Fatalf("final pass: failed = %d, want 1", len(result.Failed))
			}
			if result.Failed[0].ErrorMessage != brokerDown.Error() {
				t.Fatalf("error message = %q", result.Failed[0].ErrorMessage)
			}
		}
	}

	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}

	// Failed-строки больше не подхватываются.
	result, err := repo.ProcessPending(10, 3, func(domain.OutboxEvent) error { return nil })
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("processed = %d after failure, want 0", result.Processed)
	}

	stats, _ := repo.Stats()
	if stats.FailedCount != 1 {
		t.Fatalf("failed count = %d, want 1", stats.FailedCount)
	}
}

func TestOutboxAppend_GeneratesIDs(t *testing.T) {
	repo := NewOutboxRepository()
	if err := repo.Append([]domain.OutboxEvent{makeOutboxEvent("order.created")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	all := repo.All()
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if all[0].ID == "" || all[0].CreatedAt.IsZero() {
		t.Fatalf("id/created_at not defaulted: %+v", all[0])
	}
}
