package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type paymentRepositoryInMemory struct {
	mu      sync.Mutex
	items   map[string]domain.Payment
	byOrder map[string]string
	outbox  *OutboxRepository
}

// NewPaymentRepository возвращает in-memory репозиторий платежей.
func NewPaymentRepository(outbox *OutboxRepository) domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		items:   make(map[string]domain.Payment),
		byOrder: make(map[string]string),
		outbox:  outbox,
	}
}

func (r *paymentRepositoryInMemory) sink(events []domain.OutboxEvent) error {
	if r.outbox == nil || len(events) == 0 {
		return nil
	}
	return r.outbox.Append(events)
}

func (r *paymentRepositoryInMemory) Create(payment domain.Payment, events []domain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if errs := payment.Validate(); len(errs) > 0 {
		return errs[0]
	}

	// order_id уникален, как и в PostgreSQL-схеме.
	if _, ok := r.byOrder[payment.OrderID]; ok {
		return domain.ErrPaymentAlreadyExists
	}

	r.items[payment.ID] = payment
	r.byOrder[payment.OrderID] = payment.ID

	return r.sink(events)
}

func (r *paymentRepositoryInMemory) Get(id string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.items[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (r *paymentRepositoryInMemory) GetByOrder(orderID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.items[id], nil
}

func (r *paymentRepositoryInMemory) Save(payment domain.Payment, events []domain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[payment.ID]; !ok {
		return domain.ErrPaymentNotFound
	}

	payment.UpdatedAt = time.Now().UTC()
	r.items[payment.ID] = payment

	return r.sink(events)
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
