package memory

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

func TestPaymentRepository_CreateDuplicateOrderRejected(t *testing.T) {
	repo := NewPaymentRepository(nil)

	payment := domain.Payment{
		ID:      "pay-1",
		OrderID: "order-1",
		UserID:  "user-1",
		Amount:  decimal.NewFromFloat(10),
		Method:  "card",
		Status:  domain.PaymentStatusProcessing,
	}
	if err := repo.Create(payment, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Второй платёж по тому же заказу нарушает уникальность order_id.
	second := payment
	second.ID = "pay-2"
	if err := repo.Create(second, nil); !errors.Is(err, domain.ErrPaymentAlreadyExists) {
		t.Fatalf("err = %v, want ErrPaymentAlreadyExists", err)
	}

	// Первая строка не перезаписана.
	got, err := repo.GetByOrder("order-1")
	if err != nil {
		t.Fatalf("get by order: %v", err)
	}
	if got.ID != "pay-1" {
		t.Fatalf("payment id = %s, want pay-1", got.ID)
	}
}
