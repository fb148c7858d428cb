package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusPending — платёж инициирован, но не передан шлюзу.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusProcessing — запрос отправлен платёжному шлюзу.
	PaymentStatusProcessing PaymentStatus = "processing"
	// PaymentStatusCompleted — шлюз подтвердил списание средств.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed — шлюз отклонил платёж или произошла ошибка.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// CanTransition проверяет допустимость перехода платежа s → next.
// Разрешено: pending → processing, processing → completed|failed,
// completed → refunded. Всё остальное — нарушение жизненного цикла.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusProcessing
	case PaymentStatusProcessing:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным для саги.
// Refunded достижим только из completed отдельной операцией возврата.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// Payment описывает платёж, связанный с заказом.
type Payment struct {
	ID      string
	OrderID string
	UserID  string
	Amount  decimal.Decimal
	Method  string
	Status  PaymentStatus
	// TransactionID присваивается шлюзом при успешном списании (формат TXN-*).
	TransactionID string
	// FailureReason заполняется при отклонённом платеже.
	FailureReason string
	// RefundID присваивается шлюзом при возврате (формат REF-*).
	RefundID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.Amount.IsNegative() {
		errs = append(errs, ErrPaymentAmountNegative)
	}
	if p.Method == "" {
		errs = append(errs, ErrPaymentMethodRequired)
	}

	return errs
}

// ChargeResult — ответ платёжного шлюза на списание или возврат.
type ChargeResult struct {
	Success       bool
	TransactionID string
	ErrorReason   string
}
