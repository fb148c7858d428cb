package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

func TestReservationValidate(t *testing.T) {
	now := time.Now().UTC()
	res := domain.Reservation{
		ID:        "res-1",
		OrderID:   "order-1",
		SKU:       "sku-1",
		Qty:       2,
		Status:    domain.ReservationStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.ReservationTTL),
	}

	if errs := res.Validate(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}

	res.OrderID = ""
	res.Qty = 0
	errs := res.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 validation errors, got %v", errs)
	}
}

func TestReservationStatusTerminal(t *testing.T) {
	if domain.ReservationStatusPending.Terminal() {
		t.Fatal("pending must not be terminal")
	}

	for _, s := range []domain.ReservationStatus{
		domain.ReservationStatusConfirmed,
		domain.ReservationStatusReleased,
		domain.ReservationStatusExpired,
	} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
}

func TestProductAvailable(t *testing.T) {
	p := domain.Product{Stock: 10, Reserved: 3}
	if got := p.Available(); got != 7 {
		t.Fatalf("available = %d, want 7", got)
	}
}

func TestProductValidateInvariants(t *testing.T) {
	p := domain.Product{Name: "Widget", Stock: 5, Reserved: 6}
	errs := p.ValidateInvariants()

	found := false
	for _, err := range errs {
		if err == domain.ErrStockInvariantViolated {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stock invariant violation, got %v", errs)
	}
}
