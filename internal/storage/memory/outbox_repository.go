package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// OutboxRepository — in-memory реализация OutboxRepository для локальной
// разработки и тестов. Остальные in-memory репозитории пишут в него события
// через append, имитируя атомарность бизнес-транзакции с outbox.
type OutboxRepository struct {
	mu    sync.Mutex
	items []domain.OutboxEvent
}

// NewOutboxRepository возвращает пустой in-memory outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{}
}

func (r *OutboxRepository) append(events []domain.OutboxEvent) error {
	for i := range events {
		e := events[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		if errs := e.Validate(); len(errs) > 0 {
			return domain.ErrEventTypeRequired
		}
		e.Status = domain.OutboxStatusPending
		r.items = append(r.items, e)
	}
	return nil
}

// Append добавляет события, как это сделала бы бизнес-транзакция.
func (r *OutboxRepository) Append(events []domain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.append(events)
}

func (r *OutboxRepository) Enqueue(event domain.OutboxEvent) (domain.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.append([]domain.OutboxEvent{event}); err != nil {
		return domain.OutboxEvent{}, err
	}
	return r.items[len(r.items)-1], nil
}

func (r *OutboxRepository) ProcessPending(limit, maxAttempts int, publish func(domain.OutboxEvent) error) (domain.OutboxBatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.OutboxMaxAttempts
	}

	var result domain.OutboxBatchResult
	now := time.Now().UTC()

	for i := range r.items {
		if result.Processed >= limit {
			break
		}
		e := &r.items[i]
		if e.Status != domain.OutboxStatusPending {
			continue
		}
		result.Processed++

		if err := publish(*e); err == nil {
			e.Status = domain.OutboxStatusPublished
			e.PublishedAt = &now
			result.Published++
			continue
		} else if e.RetryCount+1 >= maxAttempts {
			e.Status = domain.OutboxStatusFailed
			e.RetryCount++
			e.ErrorMessage = err.Error()
			result.Failed = append(result.Failed, *e)
		} else {
			e.RetryCount++
			e.ErrorMessage = err.Error()
			result.Retried++
		}
	}

	return result, nil
}

func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, e := range r.items {
		switch e.Status {
		case domain.OutboxStatusPending:
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || e.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = e.CreatedAt
			}
		case domain.OutboxStatusFailed:
			stats.FailedCount++
		}
	}

	return stats, nil
}

// Pending возвращает копию всех pending-событий (для тестов).
func (r *OutboxRepository) Pending() []domain.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]domain.OutboxEvent, 0, len(r.items))
	for _, e := range r.items {
		if e.Status == domain.OutboxStatusPending {
			pending = append(pending, e)
		}
	}
	return pending
}

// All возвращает копию всех событий в порядке добавления (для тестов).
func (r *OutboxRepository) All() []domain.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.OutboxEvent(nil), r.items...)
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
