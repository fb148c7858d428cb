package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
	"github.com/vladislavdragonenkov/shopflow/internal/service/workflow"
)

const sourceService = "order-service"

// Coordinator ведёт сагу заказа. Сам заказ - единственное состояние саги:
// отдельной таблицы шагов нет, каждый обработчик события решает следующий
// шаг по текущему статусу заказа и условию перехода в UPDATE.
type Coordinator struct {
	orders  domain.OrderRepository
	outbox  domain.OutboxRepository
	cache   domain.Cache
	tracker *workflow.Tracker
	logger  *log.Entry
	metrics *metrics.Metrics
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithLogger задаёт logger координатора.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithCache подключает read-through кэш заказов.
func WithCache(cache domain.Cache) Option {
	return func(c *Coordinator) { c.cache = cache }
}

// WithTracker подключает трекер жизненного цикла заказов.
func WithTracker(tracker *workflow.Tracker) Option {
	return func(c *Coordinator) { c.tracker = tracker }
}

// NewCoordinator создаёт координатор саги заказов.
func NewCoordinator(orders domain.OrderRepository, outbox domain.OutboxRepository, options ...Option) *Coordinator {
	c := &Coordinator{
		orders: orders,
		outbox: outbox,
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "order-service")
	}
	return c
}

// CreateOrderRequest — запрос на создание заказа.
type CreateOrderRequest struct {
	UserID          string
	ShippingAddress string
	Items           []domain.OrderItem
	CorrelationID   string
}

// CreateOrder создаёт заказ в статусе pending и публикует order.created.
// Сумма заказа вычисляется по позициям, а не принимается от клиента.
func (c *Coordinator) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	now := time.Now().UTC()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Status:          domain.OrderStatusPending,
		TotalAmount:     domain.ComputeTotal(req.Items),
		ShippingAddress: req.ShippingAddress,
		Items:           req.Items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	items := make([]kafka.OrderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, kafka.OrderItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Qty,
			UnitPrice: item.UnitPrice,
		})
	}

	event, err := kafka.NewOutboxEvent(
		"order", order.ID,
		kafka.EventTypeOrderCreated, kafka.TopicOrders, order.ID,
		req.CorrelationID, sourceService,
		kafka.OrderCreatedPayload{
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Items:       items,
		},
	)
	if err != nil {
		return domain.Order{}, err
	}

	if err := c.orders.Create(order, []domain.OutboxEvent{event}); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	if c.tracker != nil {
		c.tracker.Started(order.ID, now)
	}

	c.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"total":    order.TotalAmount.String(),
	}).Info("order created")

	return order, nil
}

func orderCacheKey(id string) string {
	return "order:" + id
}

// GetOrder возвращает заказ, сперва заглядывая в кэш.
func (c *Coordinator) GetOrder(id string) (domain.Order, error) {
	if c.cache != nil {
		var cached domain.Order
		if ok, err := c.cache.Get(orderCacheKey(id), &cached); err == nil && ok {
			return cached, nil
		}
	}

	order, err := c.orders.Get(id)
	if err != nil {
		return domain.Order{}, err
	}

	if c.cache != nil {
		if err := c.cache.Set(orderCacheKey(id), order, 0); err != nil {
			c.logger.WithError(err).Debug("failed to cache order")
		}
	}

	return order, nil
}

// ListOrders возвращает заказы пользователя.
func (c *Coordinator) ListOrders(userID string, limit int) ([]domain.Order, error) {
	return c.orders.ListByUser(userID, limit)
}

// CancelOrder отменяет заказ по инициативе владельца. Отмена возможна
// из pending и confirmed; резервы склада снимаются командой inventory.release.
func (c *Coordinator) CancelOrder(id, userID, reason string) (domain.Order, error) {
	order, err := c.orders.Get(id)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != userID {
		return domain.Order{}, domain.ErrForbidden
	}

	events, err := c.outcomeEvents(order, domain.OrderStatusCancelled, kafka.EventTypeOrderCancelled, reason, "", true)
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := c.orders.UpdateStatus(id,
		[]domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed},
		domain.OrderStatusCancelled, events)
	if err != nil {
		return domain.Order{}, err
	}

	c.afterTransition(order.Status, updated)
	return updated, nil
}

// HandleInventoryReserved — склад удержал позиции, инициируем платёж.
func (c *Coordinator) HandleInventoryReserved(ctx context.Context, env kafka.Envelope) error {
	var payload kafka.InventoryReservedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}

	order, err := c.orders.Get(payload.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.logger.WithField("order_id", payload.OrderID).Warn("reserved event for unknown order")
			return nil
		}
		return err
	}
	if order.Status != domain.OrderStatusPending {
		// Поздний ответ склада: заказ уже отменён или провален.
		c.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Info("ignoring inventory.reserved for settled order")
		return nil
	}

	event, err := kafka.NewOutboxEvent(
		"order", order.ID,
		kafka.EventTypePaymentInitiated, kafka.TopicPayments, order.ID,
		env.CorrelationID, sourceService,
		kafka.PaymentInitiatedPayload{
			OrderID:       order.ID,
			UserID:        payload.UserID,
			Amount:        payload.TotalAmount,
			PaymentMethod: "card",
		},
	)
	if err != nil {
		return err
	}
	if _, err := c.outbox.Enqueue(event); err != nil {
		return fmt.Errorf("enqueue payment.initiated: %w", err)
	}

	if c.tracker != nil {
		c.tracker.Transitioned(order.ID, "awaiting_payment")
	}
	return nil
}

// HandleInventoryRejected — стока не хватило, заказ проваливается.
func (c *Coordinator) HandleInventoryRejected(ctx context.Context, env kafka.Envelope) error {
	var payload kafka.InventoryRejectedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	return c.settle(payload.OrderID, env.CorrelationID, domain.OrderStatusFailed, kafka.EventTypeOrderFailed, "insufficient_stock", false)
}

// HandlePaymentCompleted — оплата прошла, подтверждаем заказ и резервы.
func (c *Coordinator) HandlePaymentCompleted(ctx context.Context, env kafka.Envelope) error {
	var payload kafka.PaymentCompletedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	return c.settleWithCommand(payload.OrderID, env.CorrelationID, domain.OrderStatusConfirmed, kafka.EventTypeOrderConfirmed, "", kafka.EventTypeInventoryConfirm)
}

// HandlePaymentFailed — оплата не прошла, заказ проваливается, резервы снимаются.
func (c *Coordinator) HandlePaymentFailed(ctx context.Context, env kafka.Envelope) error {
	var payload kafka.PaymentFailedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	return c.settle(payload.OrderID, env.CorrelationID, domain.OrderStatusFailed, kafka.EventTypeOrderFailed, payload.Error, true)
}

func (c *Coordinator) settle(orderID, correlationID string, to domain.OrderStatus, eventType kafka.EventType, reason string, releaseStock bool) error {
	order, err := c.orders.Get(orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.logger.WithField("order_id", orderID).Warn("outcome event for unknown order")
			return nil
		}
		return err
	}

	events, err := c.outcomeEvents(order, to, eventType, reason, correlationID, releaseStock)
	if err != nil {
		return err
	}

	updated, err := c.orders.UpdateStatus(orderID, []domain.OrderStatus{domain.OrderStatusPending}, to, events)
	if err != nil {
		if domain.IsTerminalConflict(err) || errors.Is(err, domain.ErrInvalidTransition) {
			// Дубликат или поздний исход: заказ уже в конечном статусе.
			c.logger.WithFields(log.Fields{
				"order_id": orderID,
				"to":       to,
			}).Info("ignoring outcome for settled order")
			return nil
		}
		return err
	}

	c.afterTransition(order.Status, updated)
	return nil
}

func (c *Coordinator) settleWithCommand(orderID, correlationID string, to domain.OrderStatus, eventType kafka.EventType, reason string, command kafka.EventType) error {
	order, err := c.orders.Get(orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.logger.WithField("order_id", orderID).Warn("outcome event for unknown order")
			return nil
		}
		return err
	}

	events, err := c.outcomeEvents(order, to, eventType, reason, correlationID, false)
	if err != nil {
		return err
	}
	cmd, err := kafka.NewOutboxEvent(
		"order", order.ID,
		command, kafka.TopicInventory, order.ID,
		correlationID, sourceService,
		kafka.InventoryCommandPayload{OrderID: order.ID, Reason: reason},
	)
	if err != nil {
		return err
	}
	events = append(events, cmd)

	updated, err := c.orders.UpdateStatus(orderID, []domain.OrderStatus{domain.OrderStatusPending}, to, events)
	if err != nil {
		if domain.IsTerminalConflict(err) || errors.Is(err, domain.ErrInvalidTransition) {
			c.logger.WithFields(log.Fields{
				"order_id": orderID,
				"to":       to,
			}).Info("ignoring outcome for settled order")
			return nil
		}
		return err
	}

	c.afterTransition(order.Status, updated)
	return nil
}

// outcomeEvents собирает события перехода заказа: статусное событие и,
// опционально, команду на снятие резервов.
func (c *Coordinator) outcomeEvents(order domain.Order, to domain.OrderStatus, eventType kafka.EventType, reason, correlationID string, releaseStock bool) ([]domain.OutboxEvent, error) {
	statusEvent, err := kafka.NewOutboxEvent(
		"order", order.ID,
		eventType, kafka.TopicOrders, order.ID,
		correlationID, sourceService,
		kafka.OrderStatusPayload{
			OrderID: order.ID,
			UserID:  order.UserID,
			Status:  string(to),
			Reason:  reason,
		},
	)
	if err != nil {
		return nil, err
	}

	events := []domain.OutboxEvent{statusEvent}
	if releaseStock {
		release, err := kafka.NewOutboxEvent(
			"order", order.ID,
			kafka.EventTypeInventoryRelease, kafka.TopicInventory, order.ID,
			correlationID, sourceService,
			kafka.InventoryCommandPayload{OrderID: order.ID, Reason: reason},
		)
		if err != nil {
			return nil, err
		}
		events = append(events, release)
	}
	return events, nil
}

func (c *Coordinator) afterTransition(from domain.OrderStatus, order domain.Order) {
	if c.cache != nil {
		_ = c.cache.Delete(orderCacheKey(order.ID))
	}
	if c.metrics != nil {
		c.metrics.RecordStateTransition(string(from), string(order.Status))
	}
	if c.tracker != nil && (order.Status.Terminal() || order.Status == domain.OrderStatusConfirmed) {
		c.tracker.Completed(order.ID, string(order.Status))
	}

	c.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
		"to":       order.Status,
	}).Info("order state transition")
}
