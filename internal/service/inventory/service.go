package inventory

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

const (
	sourceService = "inventory-service"

	productCacheTTL = 5 * time.Minute
)

// Service — движок резервирования. Консьюмит order.created и команды
// inventory.confirm / inventory.release, отдаёт прямые операции для HTTP API
// и следит за складским инвариантом stock >= reserved >= 0.
type Service struct {
	products    domain.ProductRepository
	store       domain.InventoryStore
	reserveKeys domain.ReserveKeyStore
	cache       domain.Cache
	logger      *log.Entry
	metrics     *metrics.Metrics

	reservationTTL time.Duration
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithReservationTTL задаёт срок жизни резервов.
func WithReservationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.reservationTTL = ttl
		}
	}
}

// WithReserveKeys подключает хранилище ключей идемпотентности резервирования.
func WithReserveKeys(store domain.ReserveKeyStore) Option {
	return func(s *Service) { s.reserveKeys = store }
}

// WithCache подключает read-through кэш карточек товаров.
func WithCache(cache domain.Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// NewService создаёт движок резервирования.
func NewService(products domain.ProductRepository, store domain.InventoryStore, options ...Option) *Service {
	s := &Service{
		products:       products,
		store:          store,
		reservationTTL: domain.ReservationTTL,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "inventory-service")
	}
	return s
}

// HandleOrderCreated — обработчик события order.created: резервирует позиции
// заказа и отвечает inventory.reserved либо inventory.rejected.
func (s *Service) HandleOrderCreated(ctx context.Context, env kafka.Envelope) error {
	var payload kafka.OrderCreatedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}

	items := make([]domain.ReservationItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, domain.ReservationItem{SKU: item.ProductID, Qty: item.Quantity})
	}

	result, err := s.store.Reserve(payload.OrderID, items, s.reservationTTL, func(result domain.ReservationResult) []domain.OutboxEvent {
		return s.reservationOutcomeEvents(payload, result, env.CorrelationID)
	})
	if err != nil {
		return fmt.Errorf("reserve order %s: %w", payload.OrderID, err)
	}

	if result.Success {
		s.recordReservation("reserved")
		s.invalidateProducts(itemSKUs(items)...)
		s.logger.WithFields(log.Fields{
			"order_id":       payload.OrderID,
			"reservation_id": result.ReservationID,
			"items":          len(items),
		}).Info("inventory reserved")
		s.warnLowStock(items)
	} else {
		s.recordReservation("rejected")
		s.logger.WithFields(log.Fields{
			"order_id":     payload.OrderID,
			"failed_items": result.FailedItems,
		}).Warn("reservation rejected")
	}

	s.verifyInvariant()
	return nil
}

func (s *Service) reservationOutcomeEvents(payload kafka.OrderCreatedPayload, result domain.ReservationResult, correlationID string) []domain.OutboxEvent {
	var (
		event domain.OutboxEvent
		err   error
	)

	if result.Success {
		event, err = kafka.NewOutboxEvent(
			"reservation", result.ReservationID,
			kafka.EventTypeInventoryReserved, kafka.TopicInventory, payload.OrderID,
			correlationID, sourceService,
			kafka.InventoryReservedPayload{
				OrderID:       payload.OrderID,
				UserID:        payload.UserID,
				TotalAmount:   payload.TotalAmount,
				ReservationID: result.ReservationID,
				Items:         payload.Items,
			},
		)
	} else {
		event, err = kafka.NewOutboxEvent(
			"reservation", payload.OrderID,
			kafka.EventTypeInventoryRejected, kafka.TopicInventory, payload.OrderID,
			correlationID, sourceService,
			kafka.InventoryRejectedPayload{
				OrderID:     payload.OrderID,
				FailedItems: result.FailedItems,
			},
		)
	}
	if err != nil {
		s.logger.WithError(err).Error("failed to build reservation outcome event")
		return nil
	}
	return []domain.OutboxEvent{event}
}

// Reserve — прямая операция резервирования для HTTP API. Повторный вызов
// с тем же ключом идемпотентности возвращает первый результат.
func (s *Service) Reserve(ctx context.Context, idempotencyKey, orderID string, items []domain.ReservationItem) (domain.ReservationResult, error) {
	if idempotencyKey != "" && s.reserveKeys != nil {
		if reservationID, ok, err := s.reserveKeys.Get(idempotencyKey); err != nil {
			s.logger.WithError(err).Warn("reserve key lookup failed, proceeding without replay")
		} else if ok {
			return domain.ReservationResult{Success: true, ReservationID: reservationID}, nil
		}
	}

	result, err := s.store.Reserve(orderID, items, s.reservationTTL, nil)
	if err != nil {
		return domain.ReservationResult{}, err
	}

	if result.Success {
		s.recordReservation("reserved")
		s.invalidateProducts(itemSKUs(items)...)
		if idempotencyKey != "" && s.reserveKeys != nil {
			if err := s.reserveKeys.Put(idempotencyKey, result.ReservationID, time.Hour); err != nil {
				s.logger.WithError(err).Warn("failed to store reserve key")
			}
		}
	} else {
		s.recordReservation("rejected")
	}

	s.verifyInvariant()
	return result, nil
}

// HandleInventoryConfirm — обработчик команды inventory.confirm.
func (s *Service) HandleInventoryConfirm(ctx context.Context, env kafka.Envelope) error {
	var payload kafka.InventoryCommandPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}

	confirmed, err := s.store.Confirm(payload.OrderID, nil)
	if err != nil {
		return fmt.Errorf("confirm order %s: %w", payload.OrderID, err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":     payload.OrderID,
		"reservations": len(confirmed),
	}).Info("reservations confirmed")

	s.recordReservations("confirmed", len(confirmed))
	s.invalidateProducts(reservationSKUs(confirmed)...)
	s.verifyInvariant()
	return nil
}

// HandleInventoryRelease — обработчик команды inventory.release.
func (s *Service) HandleInventoryRelease(ctx context.Context, env kafka.Envelope) error {
	var payload kafka.InventoryCommandPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}

	released, err := s.store.Release(payload.OrderID, func(reservations []domain.Reservation) []domain.OutboxEvent {
		event, err := kafka.NewOutboxEvent(
			"reservation", payload.OrderID,
			kafka.EventTypeInventoryReleased, kafka.TopicInventory, payload.OrderID,
			env.CorrelationID, sourceService,
			kafka.InventoryCommandPayload{OrderID: payload.OrderID, Reason: payload.Reason},
		)
		if err != nil {
			s.logger.WithError(err).Error("failed to build release event")
			return nil
		}
		return []domain.OutboxEvent{event}
	})
	if err != nil {
		return fmt.Errorf("release order %s: %w", payload.OrderID, err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":     payload.OrderID,
		"reservations": len(released),
		"reason":       payload.Reason,
	}).Info("reservations released")

	s.recordReservations("released", len(released))
	s.invalidateProducts(reservationSKUs(released)...)
	s.verifyInvariant()
	return nil
}

// AdjustStock — административная корректировка остатков с событием
// inventory.updated в той же транзакции.
func (s *Service) AdjustStock(id string, op domain.StockOperation, qty int64, correlationID string) (domain.Product, error) {
	product, err := s.products.AdjustStock(id, op, qty, func(p domain.Product) []domain.OutboxEvent {
		event, err := kafka.NewOutboxEvent(
			"product", p.ID,
			kafka.EventTypeInventoryUpdated, kafka.TopicInventory, p.ID,
			correlationID, sourceService,
			kafka.InventoryUpdatedPayload{
				ProductID: p.ID,
				Stock:     p.Stock,
				Reserved:  p.Reserved,
				Available: p.Available(),
				Operation: string(op),
			},
		)
		if err != nil {
			s.logger.WithError(err).Error("failed to build inventory.updated event")
			return nil
		}
		return []domain.OutboxEvent{event}
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateProducts(product.ID)
	s.warnLowStock([]domain.ReservationItem{{SKU: product.ID}})
	return product, nil
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(product domain.Product) (domain.Product, error) {
	return s.products.Create(product)
}

// GetProduct возвращает товар, при наличии кэша читая через него.
func (s *Service) GetProduct(id string) (domain.Product, error) {
	if s.cache != nil {
		var cached domain.Product
		if ok, err := s.cache.Get(productCacheKey(id), &cached); err != nil {
			s.logger.WithError(err).Warn("product cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	product, err := s.products.Get(id)
	if err != nil {
		return domain.Product{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(productCacheKey(id), product, productCacheTTL); err != nil {
			s.logger.WithError(err).Warn("product cache write failed")
		}
	}
	return product, nil
}

func productCacheKey(id string) string {
	return "cache:product:" + id
}

// invalidateProducts сбрасывает кэш затронутых SKU после изменения остатков.
func (s *Service) invalidateProducts(skus ...string) {
	if s.cache == nil {
		return
	}
	for _, sku := range skus {
		if err := s.cache.Delete(productCacheKey(sku)); err != nil {
			s.logger.WithError(err).WithField("sku", sku).Warn("product cache invalidation failed")
		}
	}
}

func reservationSKUs(reservations []domain.Reservation) []string {
	skus := make([]string, 0, len(reservations))
	for _, r := range reservations {
		skus = append(skus, r.SKU)
	}
	return skus
}

func itemSKUs(items []domain.ReservationItem) []string {
	skus := make([]string, 0, len(items))
	for _, item := range items {
		skus = append(skus, item.SKU)
	}
	return skus
}

// ListProducts возвращает каталог, опционально отфильтрованный по категории.
func (s *Service) ListProducts(category string, limit int) ([]domain.Product, error) {
	return s.products.List(category, limit)
}

// warnLowStock логирует дефицит по затронутым SKU.
func (s *Service) warnLowStock(items []domain.ReservationItem) {
	for _, item := range items {
		product, err := s.products.Get(item.SKU)
		if err != nil {
			continue
		}
		if product.Available() < domain.LowStockThreshold {
			s.logger.WithFields(log.Fields{
				"sku":       product.ID,
				"name":      product.Name,
				"available": product.Available(),
			}).Warn("stock is running low")
		}
	}
}

// verifyInvariant проверяет склад после мутации. Ненулевой список SKU
// означает oversell: условные UPDATE такой исход исключают, поэтому каждое
// срабатывание - инцидент.
func (s *Service) verifyInvariant() {
	violations, err := s.store.InvariantViolations()
	if err != nil {
		s.logger.WithError(err).Warn("invariant check failed")
		return
	}
	for _, sku := range violations {
		if s.metrics != nil {
			s.metrics.RecordOversellIncident(sku)
		}
		s.logger.WithField("sku", sku).Error("stock invariant violated: oversell detected")
	}
}

func (s *Service) recordReservation(status string) {
	if s.metrics != nil {
		s.metrics.RecordReservation(status)
	}
}

func (s *Service) recordReservations(status string, n int) {
	if s.metrics == nil {
		return
	}
	for i := 0; i < n; i++ {
		s.metrics.RecordReservation(status)
	}
}
