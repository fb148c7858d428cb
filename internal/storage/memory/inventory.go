package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// Inventory — in-memory реализация ProductRepository и InventoryStore для
// локальной разработки и тестов. Один мьютекс покрывает товары, резервы и
// запись в outbox, что даёт ту же атомарность, что транзакция в PostgreSQL.
type Inventory struct {
	mu           sync.Mutex
	products     map[string]domain.Product
	reservations map[string]domain.Reservation
	outbox       *OutboxRepository
}

// NewInventory создаёт пустой склад. Сток событий может быть nil:
// тогда события, рождённые операциями, отбрасываются.
func NewInventory(outbox *OutboxRepository) *Inventory {
	return &Inventory{
		products:     make(map[string]domain.Product),
		reservations: make(map[string]domain.Reservation),
		outbox:       outbox,
	}
}

func (s *Inventory) sink(events []domain.OutboxEvent) error {
	if s.outbox == nil || len(events) == 0 {
		return nil
	}
	return s.outbox.Append(events)
}

func (s *Inventory) Create(product domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errs[0]
	}

	s.products[product.ID] = product
	return product, nil
}

func (s *Inventory) Get(id string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (s *Inventory) List(category string, limit int) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && p.Category != category {
			continue
		}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Inventory) AdjustStock(id string, op domain.StockOperation, qty int64, events func(domain.Product) []domain.OutboxEvent) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !op.Valid() || qty < 0 {
		return domain.Product{}, domain.ErrStockInvariantViolated
	}

	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}

	next := product.Stock
	switch op {
	case domain.StockOperationSet:
		next = qty
	case domain.StockOperationAdd:
		next += qty
	case domain.StockOperationSubtract:
		next -= qty
	}

	if next < product.Reserved {
		return domain.Product{}, domain.ErrStockInvariantViolated
	}

	product.Stock = next
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product

	if events != nil {
		if err := s.sink(events(product)); err != nil {
			return domain.Product{}, err
		}
	}

	return product, nil
}

func (s *Inventory) Reserve(orderID string, items []domain.ReservationItem, ttl time.Duration, events func(domain.ReservationResult) []domain.OutboxEvent) (domain.ReservationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = domain.ReservationTTL
	}

	var failed []domain.FailedItem
	for _, item := range items {
		product, ok := s.products[item.SKU]
		if !ok {
			failed = append(failed, domain.FailedItem{SKU: item.SKU, Requested: item.Qty, Reason: "unknown_sku"})
			continue
		}
		if product.Available() < item.Qty {
			failed = append(failed, domain.FailedItem{SKU: item.SKU, Requested: item.Qty, Reason: "insufficient_stock"})
		}
	}

	now := time.Now().UTC()
	result := domain.ReservationResult{ExpiresAt: now.Add(ttl)}

	if len(failed) > 0 {
		result.FailedItems = failed
	} else {
		result.Success = true
		result.ReservationID = uuid.NewString()
		for _, item := range items {
			product := s.products[item.SKU]
			product.Reserved += item.Qty
			product.UpdatedAt = now
			s.products[item.SKU] = product

			reservation := domain.Reservation{
				ID:        uuid.NewString(),
				OrderID:   orderID,
				SKU:       item.SKU,
				Qty:       item.Qty,
				Status:    domain.ReservationStatusPending,
				CreatedAt: now,
				ExpiresAt: result.ExpiresAt,
			}
			s.reservations[reservation.ID] = reservation
			result.Reservations = append(result.Reservations, reservation)
		}
	}

	if events != nil {
		if err := s.sink(events(result)); err != nil {
			return domain.ReservationResult{}, err
		}
	}

	return result, nil
}

func (s *Inventory) Confirm(orderID string, events func([]domain.Reservation) []domain.OutboxEvent) ([]domain.Reservation, error) {
	return s.settle(orderID, domain.ReservationStatusConfirmed, events)
}

func (s *Inventory) Release(orderID string, events func([]domain.Reservation) []domain.OutboxEvent) ([]domain.Reservation, error) {
	return s.settle(orderID, domain.ReservationStatusReleased, events)
}

func (s *Inventory) settle(orderID string, target domain.ReservationStatus, events func([]domain.Reservation) []domain.OutboxEvent) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var settled []domain.Reservation

	ids := s.pendingByOrder(orderID)
	for _, id := range ids {
		r := s.reservations[id]
		product := s.products[r.SKU]

		if target == domain.ReservationStatusConfirmed {
			product.Stock -= r.Qty
			product.Reserved -= r.Qty
			product.Sold += r.Qty
			r.ConfirmedAt = &now
		} else {
			product.Reserved -= r.Qty
			r.ReleasedAt = &now
		}
		product.UpdatedAt = now
		s.products[r.SKU] = product

		r.Status = target
		s.reservations[id] = r
		settled = append(settled, r)
	}

	if events != nil && len(settled) > 0 {
		if err := s.sink(events(settled)); err != nil {
			return nil, err
		}
	}

	return settled, nil
}

func (s *Inventory) ExpireDue(now time.Time, limit int, events func(domain.Reservation) []domain.OutboxEvent) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	settledAt := time.Now().UTC()
	var expired []domain.Reservation

	ids := make([]string, 0, len(s.reservations))
	for id, r := range s.reservations {
		if r.Status == domain.ReservationStatusPending && r.ExpiresAt.Before(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.reservations[ids[i]].ExpiresAt.Before(s.reservations[ids[j]].ExpiresAt)
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	for _, id := range ids {
		r := s.reservations[id]
		product := s.products[r.SKU]
		product.Reserved -= r.Qty
		product.UpdatedAt = settledAt
		s.products[r.SKU] = product

		r.Status = domain.ReservationStatusExpired
		r.ReleasedAt = &settledAt
		s.reservations[id] = r
		expired = append(expired, r)

		if events != nil {
			if err := s.sink(events(r)); err != nil {
				return nil, err
			}
		}
	}

	return expired, nil
}

func (s *Inventory) InvariantViolations() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var skus []string
	for id, p := range s.products {
		if p.Stock < p.Reserved || p.Reserved < 0 {
			skus = append(skus, id)
		}
	}
	sort.Strings(skus)
	return skus, nil
}

func (s *Inventory) pendingByOrder(orderID string) []string {
	var ids []string
	for id, r := range s.reservations {
		if r.OrderID == orderID && r.Status == domain.ReservationStatusPending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

var (
	_ domain.ProductRepository = (*Inventory)(nil)
	_ domain.InventoryStore    = (*Inventory)(nil)
)
