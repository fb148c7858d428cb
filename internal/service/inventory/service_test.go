package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
)

type fixture struct {
	inv     *memory.Inventory
	outbox  *memory.OutboxRepository
	service *Service
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()

	outbox := memory.NewOutboxRepository()
	inv := memory.NewInventory(outbox)
	service := NewService(inv, inv, options...)
	return &fixture{inv: inv, outbox: outbox, service: service}
}

func (f *fixture) seed(t *testing.T, sku string, stock int64) {
	t.Helper()
	if _, err := f.inv.Create(domain.Product{ID: sku, Name: "Widget " + sku, Price: decimal.NewFromFloat(9.99), Stock: stock}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func orderCreatedEnvelope(t *testing.T, orderID string, items ...kafka.OrderItemPayload) kafka.Envelope {
	t.Helper()

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	env, err := kafka.NewEnvelope(kafka.EventTypeOrderCreated, "corr-1", "order-service", kafka.OrderCreatedPayload{
		OrderID:     orderID,
		UserID:      "user-1",
		TotalAmount: total,
		Items:       items,
	})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func TestHandleOrderCreated_EmitsReserved(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sku-a", 10)

	env := orderCreatedEnvelope(t, "order-1", kafka.OrderItemPayload{
		ProductID: "sku-a", Quantity: 2, UnitPrice: decimal.NewFromFloat(9.99),
	})
	if err := f.service.HandleOrderCreated(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	events := f.outbox.Pending()
	if len(events) != 1 || events[0].EventType != string(kafka.EventTypeInventoryReserved) {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].PartitionKey != "order-1" || events[0].CorrelationID != "corr-1" {
		t.Fatalf("routing/correlation lost: %+v", events[0])
	}

	var payload kafka.InventoryReservedPayload
	if err := kafka.EnvelopeFromOutbox(events[0]).DecodePayload(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.UserID != "user-1" || payload.ReservationID == "" {
		t.Fatalf("user/total not forwarded: %+v", payload)
	}
}

func TestHandleOrderCreated_EmitsRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sku-a", 1)

	env := orderCreatedEnvelope(t, "order-1", kafka.OrderItemPayload{
		ProductID: "sku-a", Quantity: 5, UnitPrice: decimal.NewFromFloat(9.99),
	})
	if err := f.service.HandleOrderCreated(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	events := f.outbox.Pending()
	if len(events) != 1 || events[0].EventType != string(kafka.EventTypeInventoryRejected) {
		t.Fatalf("unexpected events: %+v", events)
	}

	var payload kafka.InventoryRejectedPayload
	if err := kafka.EnvelopeFromOutbox(events[0]).DecodePayload(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.FailedItems) != 1 || payload.FailedItems[0].Reason != "insufficient_stock" {
		t.Fatalf("unexpected failed items: %+v", payload.FailedItems)
	}

	// Сток не тронут.
	p, _ := f.inv.Get("sku-a")
	if p.Reserved != 0 {
		t.Fatalf("reserved = %d, want 0", p.Reserved)
	}
}

func TestHandleInventoryCommands(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sku-a", 10)

	created := orderCreatedEnvelope(t, "order-1", kafka.OrderItemPayload{
		ProductID: "sku-a", Quantity: 3, UnitPrice: decimal.NewFromFloat(9.99),
	})
	if err := f.service.HandleOrderCreated(context.Background(), created); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	confirm, _ := kafka.NewEnvelope(kafka.EventTypeInventoryConfirm, "corr-1", "order-service", kafka.InventoryCommandPayload{OrderID: "order-1"})
	if err := f.service.HandleInventoryConfirm(context.Background(), confirm); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	p, _ := f.inv.Get("sku-a")
	if p.Stock != 7 || p.Reserved != 0 || p.Sold != 3 {
		t.Fatalf("after confirm stock=%d reserved=%d sold=%d", p.Stock, p.Reserved, p.Sold)
	}

	// Release по уже подтверждённому заказу не находит pending-резервов.
	release, _ := kafka.NewEnvelope(kafka.EventTypeInventoryRelease, "corr-1", "order-service", kafka.InventoryCommandPayload{OrderID: "order-1", Reason: "payment_failed"})
	if err := f.service.HandleInventoryRelease(context.Background(), release); err != nil {
		t.Fatalf("release: %v", err)
	}
	p, _ = f.inv.Get("sku-a")
	if p.Sold != 3 || p.Reserved != 0 {
		t.Fatalf("release after confirm must be a no-op: %+v", p)
	}
}

func TestReserve_IdempotencyKeyReplay(t *testing.T) {
	keys := memory.NewReserveKeyStore()
	f := newFixture(t, WithReserveKeys(keys))
	f.seed(t, "sku-a", 5)

	items := []domain.ReservationItem{{SKU: "sku-a", Qty: 2}}

	first, err := f.service.Reserve(context.Background(), "key-1", "order-1", items)
	if err != nil || !first.Success {
		t.Fatalf("first reserve: %v %+v", err, first)
	}

	second, err := f.service.Reserve(context.Background(), "key-1", "order-1", items)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.ReservationID != first.ReservationID {
		t.Fatalf("replay returned new reservation: %s vs %s", second.ReservationID, first.ReservationID)
	}

	// Сток удержан один раз.
	p, _ := f.inv.Get("sku-a")
	if p.Reserved != 2 {
		t.Fatalf("reserved = %d, want 2", p.Reserved)
	}
}

func TestAdjustStock_EmitsInventoryUpdated(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sku-a", 10)

	product, err := f.service.AdjustStock("sku-a", domain.StockOperationAdd, 5, "corr-9")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if product.Stock != 15 {
		t.Fatalf("stock = %d, want 15", product.Stock)
	}

	events := f.outbox.Pending()
	if len(events) != 1 || events[0].EventType != string(kafka.EventTypeInventoryUpdated) {
		t.Fatalf("unexpected events: %+v", events)
	}

	var payload kafka.InventoryUpdatedPayload
	if err := kafka.EnvelopeFromOutbox(events[0]).DecodePayload(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Stock != 15 || payload.Available != 15 || payload.Operation != "add" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestGetProduct_CacheReadThroughAndInvalidation(t *testing.T) {
	cache := memory.NewCache()
	f := newFixture(t, WithCache(cache))
	f.seed(t, "sku-a", 10)

	first, err := f.service.GetProduct("sku-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var cached domain.Product
	if ok, _ := cache.Get("cache:product:sku-a", &cached); !ok {
		t.Fatal("product not cached after read")
	}
	if cached.Stock != first.Stock {
		t.Fatalf("cached stock = %d, want %d", cached.Stock, first.Stock)
	}

	// Изменение остатков сбрасывает кэш, следующее чтение видит новое значение.
	if _, err := f.service.AdjustStock("sku-a", domain.StockOperationAdd, 5, ""); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if ok, _ := cache.Get("cache:product:sku-a", &cached); ok {
		t.Fatal("cache not invalidated after stock write")
	}

	updated, err := f.service.GetProduct("sku-a")
	if err != nil {
		t.Fatalf("get after adjust: %v", err)
	}
	if updated.Stock != 15 {
		t.Fatalf("stock = %d, want 15", updated.Stock)
	}
}

func TestSweeper_ReleasesExpired(t *testing.T) {
	f := newFixture(t, WithReservationTTL(time.Millisecond))
	f.seed(t, "sku-a", 10)

	env := orderCreatedEnvelope(t, "order-1", kafka.OrderItemPayload{
		ProductID: "sku-a", Quantity: 4, UnitPrice: decimal.NewFromFloat(9.99),
	})
	if err := f.service.HandleOrderCreated(context.Background(), env); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	sweeper := NewSweeper(f.service, time.Minute, 10)
	if n := sweeper.SweepOnce(context.Background()); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}

	p, _ := f.inv.Get("sku-a")
	if p.Reserved != 0 || p.Stock != 10 {
		t.Fatalf("stock not returned: %+v", p)
	}

	var sawReleased bool
	for _, e := range f.outbox.Pending() {
		if e.EventType == string(kafka.EventTypeInventoryReleased) {
			sawReleased = true
			var payload kafka.InventoryCommandPayload
			if err := kafka.EnvelopeFromOutbox(e).DecodePayload(&payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if payload.Reason != "reservation_expired" {
				t.Fatalf("reason = %q", payload.Reason)
			}
		}
	}
	if !sawReleased {
		t.Fatal("no inventory.released event after sweep")
	}
}
