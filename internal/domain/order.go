package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, резервирование и оплата ещё идут.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — оплата подтверждена, резерв списан.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing — заказ передан в исполнение.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ отгружен.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен клиенту.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён клиентом.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusFailed — сага завершилась неуспехом (нет стока или отказ оплаты).
	OrderStatusFailed OrderStatus = "failed"
)

// orderTransitions — дерево допустимых переходов. Корень — pending.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// Terminal сообщает, является ли статус конечным.
// Конечные заказы не принимают ни событий, ни переходов.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition проверяет допустимость перехода s → next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Qty         int64
	// UnitPrice — цена за единицу на момент создания заказа.
	UnitPrice decimal.Decimal
}

// Order агрегирует заказ и его позиции. Владелец записи: order-service.
type Order struct {
	ID     string
	UserID string
	Status OrderStatus
	// TotalAmount фиксируется при создании: Σ qty × unitPrice.
	TotalAmount     decimal.Decimal
	ShippingAddress string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ComputeTotal возвращает сумму позиций заказа.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Qty)))
	}
	return total
}

// ValidateInvariants проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserIDRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	// Сверяем сумму заказа с суммой позиций: qty * price, точность 2 знака.
	if !ComputeTotal(o.Items).Equal(o.TotalAmount) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
