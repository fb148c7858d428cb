package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

func seedProduct(t *testing.T, inv *Inventory, id string, stock int64) domain.Product {
	t.Helper()

	product, err := inv.Create(domain.Product{
		ID:    id,
		Name:  "Widget " + id,
		Price: decimal.NewFromFloat(19.99),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func TestInventoryReserve_AllOrNothing(t *testing.T) {
	inv := NewInventory(nil)
	seedProduct(t, inv, "sku-a", 10)
	seedProduct(t, inv, "sku-b", 1)

	result, err := inv.Reserve("order-1", []domain.ReservationItem{
		{SKU: "sku-a", Qty: 2},
		{SKU: "sku-b", Qty: 5},
	}, time.Minute, nil)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if result.Success {
		t.Fatal("expected reservation to fail on sku-b")
	}
	if len(result.FailedItems) != 1 || result.FailedItems[0].SKU != "sku-b" {
		t.Fatalf("unexpected failed items: %+v", result.FailedItems)
	}

	// Частичный резерв не должен остаться.
	a, _ := inv.Get("sku-a")
	if a.Reserved != 0 {
		t.Fatalf("sku-a reserved = %d, want 0", a.Reserved)
	}
}

func TestInventoryReserve_UnknownSKU(t *testing.T) {
	inv := NewInventory(nil)
	seedProduct(t, inv, "sku-a", 10)

	result, err := inv.Reserve("order-1", []domain.ReservationItem{
		{SKU: "sku-a", Qty: 1},
		{SKU: "sku-missing", Qty: 1},
	}, time.Minute, nil)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if result.Success {
		t.Fatal("expected reservation to fail")
	}
	if result.FailedItems[0].Reason != "unknown_sku" {
		t.Fatalf("reason = %q, want unknown_sku", result.FailedItems[0].Reason)
	}
}

func TestInventoryConfirm_MovesStockToSold(t *testing.T) {
	inv := NewInventory(nil)
	seedProduct(t, inv, "sku-a", 10)

	if _, err := inv.Reserve("order-1", []domain.ReservationItem{{SKU: "sku-a", Qty: 3}}, time.Minute, nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	confirmed, err := inv.Confirm("order-1", nil)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(confirmed) != 1 || confirmed[0].Status != domain.ReservationStatusConfirmed {
		t.Fatalf("unexpected confirmed reservations: %+v", confirmed)
	}

	p, _ := inv.Get("sku-a")
	if p.Stock != 7 || p.Reserved != 0 || p.Sold != 3 {
		t.Fatalf("got stock=%d reserved=%d sold=%d, want 7/0/3", p.Stock, p.Reserved, p.Sold)
	}

	// Повторный confirm не находит pending-резервов и ничего не меняет.
	again, err := inv.Confirm("order-1", nil)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second confirm settled %d reservations, want 0", len(again))
	}
}

func TestInventoryRelease_ReturnsReserved(t *testing.T) {
	inv := NewInventory(nil)
	seedProduct(t, inv, "sku-a", 10)

	if _, err := inv.Reserve("order-1", []domain.ReservationItem{{SKU: "sku-a", Qty: 4}}, time.Minute, nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := inv.Release("order-1", nil); err != nil {
		t.Fatalf("release: %v", err)
	}

	p, _ := inv.Get("sku-a")
	if p.Stock != 10 || p.Reserved != 0 || p.Sold != 0 {
		t.Fatalf("got stock=%d reserved=%d sold=%d, want 10/0/0", p.Stock, p.Reserved, p.Sold)
	}
}

func TestInventoryExpireDue(t *testing.T) {
	inv := NewInventory(nil)
	seedProduct(t, inv, "sku-a", 10)

	if _, err := inv.Reserve("order-1", []domain.ReservationItem{{SKU: "sku-a", Qty: 2}}, time.Millisecond, nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	expired, err := inv.ExpireDue(time.Now().Add(time.Second), 10, nil)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0].Status != domain.ReservationStatusExpired {
		t.Fatalf("unexpected expired reservations: %+v", expired)
	}

	p, _ := inv.Get("sku-a")
	if p.Reserved != 0 {
		t.Fatalf("reserved = %d after expire, want 0", p.Reserved)
	}
}

// Гонка резервов: 200 конкурентных заказов по 1 штуке на остаток 100.
// Ровно 100 должны выиграть, инвариант stock >= reserved >= 0 не нарушается.
func TestInventoryReserve_NoOversellUnderContention(t *testing.T) {
	inv := NewInventory(nil)
	seedProduct(t, inv, "sku-hot", 100)

	const workers = 200

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			orderID := fmt.Sprintf("order-%03d", n)
			result, err := inv.Reserve(orderID, []domain.ReservationItem{{SKU: "sku-hot", Qty: 1}}, time.Minute, nil)
			if err != nil {
				t.Errorf("reserve %d: %v", n, err)
				return
			}
			if result.Success {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 100 {
		t.Fatalf("wins = %d, want exactly 100", wins)
	}

	violations, err := inv.InvariantViolations()
	if err != nil {
		t.Fatalf("invariant check: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("invariant violated for %v", violations)
	}

	p, _ := inv.Get("sku-hot")
	if p.Reserved != 100 {
		t.Fatalf("reserved = %d, want 100", p.Reserved)
	}
}

func TestAdjustStock_GuardsInvariant(t *testing.T) {
	inv := NewInventory(nil)
	seedProduct(t, inv, "sku-a", 10)
	if _, err := inv.Reserve("order-1", []domain.ReservationItem{{SKU: "sku-a", Qty: 6}}, time.Minute, nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if _, err := inv.AdjustStock("sku-a", domain.StockOperationSet, 5, nil); err != domain.ErrStockInvariantViolated {
		t.Fatalf("set below reserved: err = %v, want ErrStockInvariantViolated", err)
	}

	p, err := inv.AdjustStock("sku-a", domain.StockOperationAdd, 5, nil)
	if err != nil {
		t.Fatalf("add stock: %v", err)
	}
	if p.Stock != 15 {
		t.Fatalf("stock = %d, want 15", p.Stock)
	}

	if _, err := inv.AdjustStock("sku-missing", domain.StockOperationAdd, 1, nil); err != domain.ErrProductNotFound {
		t.Fatalf("missing sku: err = %v, want ErrProductNotFound", err)
	}
}
