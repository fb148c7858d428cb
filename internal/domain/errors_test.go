package domain_test

import (
	"fmt"
	"testing"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

func TestIsInsufficientStock(t *testing.T) {
	wrapped := fmt.Errorf("reserve sku-1: %w", domain.ErrInsufficientStock)
	if !domain.IsInsufficientStock(wrapped) {
		t.Fatal("expected wrapped error to match ErrInsufficientStock")
	}
	if domain.IsInsufficientStock(domain.ErrOrderNotFound) {
		t.Fatal("unrelated error must not match")
	}
}

func TestIsNotFound(t *testing.T) {
	for _, err := range []error{
		domain.ErrUserNotFound,
		domain.ErrProductNotFound,
		domain.ErrOrderNotFound,
		domain.ErrPaymentNotFound,
		domain.ErrReservationNotFound,
	} {
		if !domain.IsNotFound(fmt.Errorf("load: %w", err)) {
			t.Fatalf("expected %v to match not-found family", err)
		}
	}

	if domain.IsNotFound(domain.ErrPaymentDeclined) {
		t.Fatal("payment declined is not a not-found error")
	}
}

func TestIsTerminalConflict(t *testing.T) {
	if !domain.IsTerminalConflict(fmt.Errorf("update: %w", domain.ErrOrderTerminal)) {
		t.Fatal("expected ErrOrderTerminal to match")
	}
	if domain.IsTerminalConflict(domain.ErrInvalidTransition) {
		t.Fatal("invalid transition is not a terminal conflict")
	}
}
