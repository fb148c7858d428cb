package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/service/inventory"
	"github.com/vladislavdragonenkov/shopflow/internal/service/order"
	"github.com/vladislavdragonenkov/shopflow/internal/service/payment"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
)

// scriptedGateway позволяет задать исход оплаты в каждом тесте.
type scriptedGateway struct {
	declineReason string
	unavailable   error
	chargeCalls   int
}

func (g *scriptedGateway) Charge(context.Context, string, decimal.Decimal, string) (domain.ChargeResult, error) {
	g.chargeCalls++
	if g.unavailable != nil {
		return domain.ChargeResult{}, g.unavailable
	}
	if g.declineReason != "" {
		return domain.ChargeResult{Success: false, ErrorReason: g.declineReason}, nil
	}
	return domain.ChargeResult{Success: true, TransactionID: "TXN-integration"}, nil
}

func (g *scriptedGateway) Refund(context.Context, string, decimal.Decimal) (string, error) {
	return "REF-integration", nil
}

// OrderLifecycleTestSuite гоняет полный цикл заказа через in-memory
// хранилища и общий outbox, играющий роль шины событий.
type OrderLifecycleTestSuite struct {
	suite.Suite

	outbox      *memory.OutboxRepository
	store       *memory.Inventory
	orders      domain.OrderRepository
	payments    domain.PaymentRepository
	gateway     *scriptedGateway
	inventory   *inventory.Service
	paymentSvc  *payment.Service
	coordinator *order.Coordinator
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	s.outbox = memory.NewOutboxRepository()
	s.store = memory.NewInventory(s.outbox)
	s.orders = memory.NewOrderRepository(s.outbox)
	s.payments = memory.NewPaymentRepository(s.outbox)
	s.gateway = &scriptedGateway{}

	s.inventory = inventory.NewService(s.store, s.store,
		inventory.WithLogger(logger),
		inventory.WithReserveKeys(memory.NewReserveKeyStore()),
	)
	s.paymentSvc = payment.NewService(s.payments, s.gateway, payment.WithLogger(logger))
	s.coordinator = order.NewCoordinator(s.orders, s.outbox,
		order.WithLogger(logger),
		order.WithCache(memory.NewCache()),
	)
}

// pump прокачивает outbox через обработчики, как это делали бы
// publisher и consumers, до полного опустошения.
func (s *OrderLifecycleTestSuite) pump() {
	ctx := context.Background()

	handlers := map[string]func(context.Context, kafka.Envelope) error{
		string(kafka.EventTypeOrderCreated):      s.inventory.HandleOrderCreated,
		string(kafka.EventTypeInventoryReserved): s.coordinator.HandleInventoryReserved,
		string(kafka.EventTypeInventoryRejected): s.coordinator.HandleInventoryRejected,
		string(kafka.EventTypeInventoryConfirm):  s.inventory.HandleInventoryConfirm,
		string(kafka.EventTypeInventoryRelease):  s.inventory.HandleInventoryRelease,
		string(kafka.EventTypePaymentInitiated):  s.paymentSvc.HandlePaymentInitiated,
		string(kafka.EventTypePaymentCompleted):  s.coordinator.HandlePaymentCompleted,
		string(kafka.EventTypePaymentFailed):     s.coordinator.HandlePaymentFailed,
	}

	for iteration := 0; iteration < 20; iteration++ {
		var batch []domain.OutboxEvent
		result, err := s.outbox.ProcessPending(100, 5, func(event domain.OutboxEvent) error {
			batch = append(batch, event)
			return nil
		})
		require.NoError(s.T(), err)
		if result.Processed == 0 {
			return
		}

		for _, event := range batch {
			handler, ok := handlers[event.EventType]
			if !ok {
				continue
			}
			// Ошибка обработчика соответствует неудачной доставке:
			// в проде событие ушло бы в retry, здесь просто теряется.
			_ = handler(ctx, kafka.EnvelopeFromOutbox(event))
		}
	}

	s.T().Fatal("outbox did not drain in 20 iterations")
}

func (s *OrderLifecycleTestSuite) createProduct(stock int64) domain.Product {
	product, err := s.inventory.CreateProduct(domain.Product{
		Name:     "Laptop Pro",
		Category: "electronics",
		Price:    decimal.NewFromFloat(1999.00),
		Stock:    stock,
	})
	require.NoError(s.T(), err)
	return product
}

func (s *OrderLifecycleTestSuite) createOrder(product domain.Product, qty int64) domain.Order {
	created, err := s.coordinator.CreateOrder(context.Background(), order.CreateOrderRequest{
		UserID:          "customer-123",
		ShippingAddress: "Moscow, Tverskaya 1",
		Items: []domain.OrderItem{
			{ProductID: product.ID, ProductName: product.Name, Qty: qty, UnitPrice: product.Price},
		},
	})
	require.NoError(s.T(), err)
	return created
}

func (s *OrderLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	product := s.createProduct(10)
	created := s.createOrder(product, 3)
	require.Equal(s.T(), domain.OrderStatusPending, created.Status)
	require.Equal(s.T(), "5997", created.TotalAmount.String())

	s.pump()

	confirmed, err := s.orders.Get(created.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusConfirmed, confirmed.Status)

	// Резерв списан в продажу: stock-, sold+, reserved обнулён.
	updated, err := s.store.Get(product.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(7), updated.Stock)
	require.Equal(s.T(), int64(0), updated.Reserved)
	require.Equal(s.T(), int64(3), updated.Sold)

	paid, err := s.payments.GetByOrder(created.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.PaymentStatusCompleted, paid.Status)
	require.Equal(s.T(), 1, s.gateway.chargeCalls)
}

func (s *OrderLifecycleTestSuite) TestPaymentDeclineReleasesStock() {
	s.gateway.declineReason = "card_declined"

	product := s.createProduct(10)
	created := s.createOrder(product, 3)

	s.pump()

	failed, err := s.orders.Get(created.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusFailed, failed.Status)

	// Компенсация: резерв возвращён, продаж нет.
	updated, err := s.store.Get(product.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(10), updated.Stock)
	require.Equal(s.T(), int64(0), updated.Reserved)
	require.Equal(s.T(), int64(0), updated.Sold)

	declined, err := s.payments.GetByOrder(created.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.PaymentStatusFailed, declined.Status)
	require.Equal(s.T(), "card_declined", declined.FailureReason)
}

func (s *OrderLifecycleTestSuite) TestInsufficientStockFailsOrder() {
	product := s.createProduct(2)
	created := s.createOrder(product, 5)

	s.pump()

	failed, err := s.orders.Get(created.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusFailed, failed.Status)

	// До платежа дело не дошло.
	_, err = s.payments.GetByOrder(created.ID)
	require.ErrorIs(s.T(), err, domain.ErrPaymentNotFound)
	require.Equal(s.T(), 0, s.gateway.chargeCalls)

	updated, err := s.store.Get(product.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(2), updated.Stock)
	require.Equal(s.T(), int64(0), updated.Reserved)
}

func (s *OrderLifecycleTestSuite) TestCancelBeforePaymentReleasesStock() {
	// Шлюз недоступен: платёж зависает в processing, заказ остаётся pending.
	s.gateway.unavailable = errors.New("gateway timeout")

	product := s.createProduct(10)
	created := s.createOrder(product, 4)

	s.pump()

	pending, err := s.orders.Get(created.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusPending, pending.Status)

	reserved, err := s.store.Get(product.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(4), reserved.Reserved)

	cancelled, err := s.coordinator.CancelOrder(created.ID, "customer-123", "changed my mind")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusCancelled, cancelled.Status)

	s.pump()

	released, err := s.store.Get(product.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(10), released.Stock)
	require.Equal(s.T(), int64(0), released.Reserved)

	// Поздний исход платежа больше не меняет заказ.
	require.Equal(s.T(), domain.OrderStatusCancelled, s.mustGetOrder(created.ID).Status)
}

func (s *OrderLifecycleTestSuite) mustGetOrder(id string) domain.Order {
	found, err := s.orders.Get(id)
	require.NoError(s.T(), err)
	return found
}

func TestOrderLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
