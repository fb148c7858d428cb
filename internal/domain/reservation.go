package domain

import "time"

// ReservationStatus отражает жизненный цикл резерва товара на складе.
type ReservationStatus string

const (
	// ReservationStatusPending — резерв создан, ожидаем исход оплаты.
	ReservationStatusPending ReservationStatus = "pending"
	// ReservationStatusConfirmed — оплата прошла, резерв списан в продажи.
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	// ReservationStatusReleased — резерв снят (отказ оплаты или отмена заказа).
	ReservationStatusReleased ReservationStatus = "released"
	// ReservationStatusExpired — резерв снят sweeper'ом по истечении TTL.
	ReservationStatusExpired ReservationStatus = "expired"
)

// Terminal сообщает, является ли статус конечным. Конечные резервы неизменяемы.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationStatusConfirmed, ReservationStatusReleased, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

// ReservationTTL — срок жизни резерва по умолчанию.
const ReservationTTL = 10 * time.Minute

// Reservation описывает удержание товара под конкретный заказ.
// Создаётся только в статусе pending; допустимые переходы:
// pending → confirmed, pending → released, pending → expired.
type Reservation struct {
	ID          string
	OrderID     string
	SKU         string
	Qty         int64
	Status      ReservationStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
	ReleasedAt  *time.Time
}

// Validate проверяет обязательные поля резерва.
func (r *Reservation) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.SKU == "" {
		errs = append(errs, ErrReservationSKURequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrReservationQtyInvalid)
	}

	return errs
}

// ReservationItem — запрошенная позиция резервирования.
type ReservationItem struct {
	SKU string
	Qty int64
}

// FailedItem описывает позицию, по которой резервирование не удалось.
type FailedItem struct {
	SKU       string `json:"sku_id"`
	Requested int64  `json:"requested"`
	Reason    string `json:"reason"`
}

// ReservationResult — итог операции резервирования группы позиций.
// Операция атомарна: либо зарезервированы все позиции, либо ни одной.
type ReservationResult struct {
	Success       bool
	ReservationID string
	Reservations  []Reservation
	FailedItems   []FailedItem
	ExpiresAt     time.Time
}
