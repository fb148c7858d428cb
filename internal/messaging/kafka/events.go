package kafka

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// EventType определяет тип события на шине.
type EventType string

const (
	// User события
	EventTypeUserRegistered EventType = "user.registered"

	// Order события
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderConfirmed EventType = "order.confirmed"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderFailed    EventType = "order.failed"

	// Inventory события
	EventTypeInventoryReserved EventType = "inventory.reserved"
	EventTypeInventoryRejected EventType = "inventory.rejected"
	EventTypeInventoryReleased EventType = "inventory.released"
	EventTypeInventoryUpdated  EventType = "inventory.updated"

	// Команды складу от координатора саги
	EventTypeInventoryConfirm EventType = "inventory.confirm"
	EventTypeInventoryRelease EventType = "inventory.release"

	// Payment события
	EventTypePaymentInitiated EventType = "payment.initiated"
	EventTypePaymentCompleted EventType = "payment.completed"
	EventTypePaymentFailed    EventType = "payment.failed"
	EventTypePaymentRefunded  EventType = "payment.refunded"
)

// Topics шины. Ключи партиционирования: users — user_id, orders — order_id,
// payments — order_id, dead-letter — event_id. На inventory складские события
// ключуются sku, события резервов конкретного заказа — order_id.
const (
	TopicUsers      = "users"
	TopicOrders     = "orders"
	TopicInventory  = "inventory"
	TopicPayments   = "payments"
	TopicDeadLetter = "dead-letter"
)

// Kafka headers для retry логики и DLQ
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderCorrelationID = "x-correlation-id"
)

// UserRegisteredPayload — тело события user.registered.
type UserRegisteredPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// OrderItemPayload — позиция заказа в событии order.created.
type OrderItemPayload struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCreatedPayload — тело события order.created.
type OrderCreatedPayload struct {
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []OrderItemPayload `json:"items"`
}

// OrderStatusPayload — тело событий order.confirmed / order.cancelled / order.failed.
type OrderStatusPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

// InventoryReservedPayload — тело события inventory.reserved.
// user_id и total_amount прокидываются дальше, чтобы координатор мог
// инициировать платёж без дополнительного чтения заказа.
type InventoryReservedPayload struct {
	OrderID       string             `json:"order_id"`
	UserID        string             `json:"user_id"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	ReservationID string             `json:"reservation_id"`
	Items         []OrderItemPayload `json:"items"`
}

// InventoryRejectedPayload — тело события inventory.rejected.
type InventoryRejectedPayload struct {
	OrderID     string              `json:"order_id"`
	FailedItems []domain.FailedItem `json:"failed_items"`
}

// InventoryCommandPayload — тело команд inventory.confirm / inventory.release
// и события inventory.released.
type InventoryCommandPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

// InventoryUpdatedPayload — тело события inventory.updated после
// административной корректировки остатков.
type InventoryUpdatedPayload struct {
	ProductID string `json:"product_id"`
	Stock     int64  `json:"stock_quantity"`
	Reserved  int64  `json:"reserved_quantity"`
	Available int64  `json:"available_quantity"`
	Operation string `json:"operation"`
}

// PaymentInitiatedPayload — тело события payment.initiated.
type PaymentInitiatedPayload struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

// PaymentCompletedPayload — тело события payment.completed.
type PaymentCompletedPayload struct {
	PaymentID     string          `json:"payment_id"`
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
}

// PaymentFailedPayload — тело события payment.failed.
type PaymentFailedPayload struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Error     string `json:"error"`
}

// PaymentRefundedPayload — тело события payment.refunded.
type PaymentRefundedPayload struct {
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	RefundID  string          `json:"refund_id"`
	Reason    string          `json:"reason,omitempty"`
}
