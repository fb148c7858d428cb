package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type orderRepositoryInMemory struct {
	mu     sync.Mutex
	items  map[string]domain.Order
	outbox *OutboxRepository
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(outbox *OutboxRepository) domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:  make(map[string]domain.Order),
		outbox: outbox,
	}
}

func (r *orderRepositoryInMemory) sink(events []domain.OutboxEvent) error {
	if r.outbox == nil || len(events) == 0 {
		return nil
	}
	return r.outbox.Append(events)
}

func (r *orderRepositoryInMemory) Create(order domain.Order, events []domain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.NewString()
		}
		order.Items[i].OrderID = order.ID
	}

	// Сохраняем копию позиций, чтобы избежать мутаций извне.
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	r.items[order.ID] = order

	return r.sink(events)
}

func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return order, nil
}

func (r *orderRepositoryInMemory) ListByUser(userID string, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.UserID != userID {
			continue
		}
		order.Items = append([]domain.OrderItem(nil), order.Items...)
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (r *orderRepositoryInMemory) UpdateStatus(id string, from []domain.OrderStatus, to domain.OrderStatus, events []domain.OutboxEvent) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	allowed := false
	for _, s := range from {
		if s == order.Status {
			allowed = true
			break
		}
	}
	if !allowed {
		if order.Status.Terminal() {
			return domain.Order{}, domain.ErrOrderTerminal
		}
		return domain.Order{}, domain.ErrInvalidTransition
	}

	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	r.items[id] = order

	if err := r.sink(events); err != nil {
		return domain.Order{}, err
	}

	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
