package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
)

type stubGateway struct {
	chargeResult domain.ChargeResult
	chargeErr    error
	refundID     string
	refundErr    error

	chargeCalls int
	refundCalls int
}

func (g *stubGateway) Charge(_ context.Context, _ string, _ decimal.Decimal, _ string) (domain.ChargeResult, error) {
	g.chargeCalls++
	return g.chargeResult, g.chargeErr
}

func (g *stubGateway) Refund(_ context.Context, _ string, _ decimal.Decimal) (string, error) {
	g.refundCalls++
	return g.refundID, g.refundErr
}

func chargeReq() ChargeRequest {
	return ChargeRequest{
		OrderID:       "order-1",
		UserID:        "user-1",
		Amount:        decimal.NewFromFloat(59.98),
		Method:        "card",
		CorrelationID: "corr-1",
	}
}

func TestCharge_Success(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPaymentRepository(outbox)
	gateway := &stubGateway{chargeResult: domain.ChargeResult{Success: true, TransactionID: "TXN-1"}}
	svc := NewService(repo, gateway)

	payment, err := svc.Charge(context.Background(), chargeReq())
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("status = %s, want completed", payment.Status)
	}
	if payment.TransactionID != "TXN-1" || payment.CompletedAt == nil {
		t.Fatalf("transaction not recorded: %+v", payment)
	}

	events := outbox.Pending()
	if len(events) != 1 || events[0].EventType != string(kafka.EventTypePaymentCompleted) {
		t.Fatalf("unexpected outbox events: %+v", events)
	}
	if events[0].PartitionKey != "order-1" || events[0].Topic != kafka.TopicPayments {
		t.Fatalf("wrong routing: %+v", events[0])
	}
}

func TestCharge_Declined(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPaymentRepository(outbox)
	gateway := &stubGateway{chargeResult: domain.ChargeResult{Success: false, ErrorReason: "card_declined"}}
	svc := NewService(repo, gateway)

	payment, err := svc.Charge(context.Background(), chargeReq())
	if !errors.Is(err, domain.ErrPaymentDeclined) {
		t.Fatalf("err = %v, want ErrPaymentDeclined", err)
	}
	if payment.Status != domain.PaymentStatusFailed || payment.FailureReason != "card_declined" {
		t.Fatalf("unexpected payment: %+v", payment)
	}

	events := outbox.Pending()
	if len(events) != 1 || events[0].EventType != string(kafka.EventTypePaymentFailed) {
		t.Fatalf("unexpected outbox events: %+v", events)
	}
}

func TestCharge_GatewayUnavailableKeepsProcessing(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPaymentRepository(outbox)
	gateway := &stubGateway{chargeErr: errors.New("gateway timeout")}
	svc := NewService(repo, gateway)

	if _, err := svc.Charge(context.Background(), chargeReq()); err == nil {
		t.Fatal("expected error")
	}

	saved, err := repo.GetByOrder("order-1")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if saved.Status != domain.PaymentStatusProcessing {
		t.Fatalf("status = %s, want processing", saved.Status)
	}
	if len(outbox.Pending()) != 0 {
		t.Fatal("no outcome event expected while processing")
	}
}

func TestHandlePaymentInitiated_SkipsSettledOrder(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPaymentRepository(outbox)
	gateway := &stubGateway{chargeResult: domain.ChargeResult{Success: true, TransactionID: "TXN-1"}}
	svc := NewService(repo, gateway)

	env, err := kafka.NewEnvelope(kafka.EventTypePaymentInitiated, "corr-1", "order-service", kafka.PaymentInitiatedPayload{
		OrderID: "order-1",
		UserID:  "user-1",
		Amount:  decimal.NewFromFloat(10),
	})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}

	if err := svc.HandlePaymentInitiated(context.Background(), env); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandlePaymentInitiated(context.Background(), env); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if gateway.chargeCalls != 1 {
		t.Fatalf("charge calls = %d, want 1 (duplicate must be skipped)", gateway.chargeCalls)
	}
}

func TestHandlePaymentInitiated_RedeliveryReusesProcessingPayment(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPaymentRepository(outbox)
	gateway := &stubGateway{chargeErr: errors.New("gateway timeout")}
	svc := NewService(repo, gateway)

	env, err := kafka.NewEnvelope(kafka.EventTypePaymentInitiated, "corr-1", "order-service", kafka.PaymentInitiatedPayload{
		OrderID: "order-1",
		UserID:  "user-1",
		Amount:  decimal.NewFromFloat(10),
	})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}

	// Первая доставка: шлюз недоступен, платёж остаётся в processing.
	if err := svc.HandlePaymentInitiated(context.Background(), env); err == nil {
		t.Fatal("transient gateway failure must surface to the consumer")
	}
	first, err := repo.GetByOrder("order-1")
	if err != nil {
		t.Fatalf("payment after first delivery: %v", err)
	}
	if first.Status != domain.PaymentStatusProcessing {
		t.Fatalf("status = %s, want processing", first.Status)
	}

	// Повторная доставка добивает ту же строку, а не вставляет новую:
	// order_id в схеме уникален.
	gateway.chargeErr = nil
	gateway.chargeResult = domain.ChargeResult{Success: true, TransactionID: "TXN-retry"}

	if err := svc.HandlePaymentInitiated(context.Background(), env); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	second, err := repo.GetByOrder("order-1")
	if err != nil {
		t.Fatalf("payment after redelivery: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("redelivery created a new payment row: %s vs %s", second.ID, first.ID)
	}
	if second.Status != domain.PaymentStatusCompleted || second.TransactionID != "TXN-retry" {
		t.Fatalf("unexpected payment after retry: %+v", second)
	}
	if gateway.chargeCalls != 2 {
		t.Fatalf("charge calls = %d, want 2", gateway.chargeCalls)
	}

	events := outbox.Pending()
	if len(events) != 1 || events[0].EventType != string(kafka.EventTypePaymentCompleted) {
		t.Fatalf("unexpected outbox events: %+v", events)
	}
}

func TestCharge_ReplaysSettledOutcome(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPaymentRepository(outbox)
	gateway := &stubGateway{chargeResult: domain.ChargeResult{Success: true, TransactionID: "TXN-1"}}
	svc := NewService(repo, gateway)

	first, err := svc.Charge(context.Background(), chargeReq())
	if err != nil {
		t.Fatalf("charge: %v", err)
	}

	// Повторный Charge по тому же заказу не ходит в шлюз и не плодит строк.
	again, err := svc.Charge(context.Background(), chargeReq())
	if err != nil {
		t.Fatalf("repeat charge: %v", err)
	}
	if again.ID != first.ID || again.TransactionID != "TXN-1" {
		t.Fatalf("settled payment not replayed: %+v", again)
	}
	if gateway.chargeCalls != 1 {
		t.Fatalf("charge calls = %d, want 1", gateway.chargeCalls)
	}
	if len(outbox.Pending()) != 1 {
		t.Fatalf("outbox events = %d, want 1", len(outbox.Pending()))
	}
}

func TestHandlePaymentInitiated_DeclinedIsNotRetried(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPaymentRepository(outbox)
	gateway := &stubGateway{chargeResult: domain.ChargeResult{Success: false, ErrorReason: "card_declined"}}
	svc := NewService(repo, gateway)

	env, err := kafka.NewEnvelope(kafka.EventTypePaymentInitiated, "", "order-service", kafka.PaymentInitiatedPayload{
		OrderID: "order-1",
		UserID:  "user-1",
		Amount:  decimal.NewFromFloat(10),
	})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}

	if err := svc.HandlePaymentInitiated(context.Background(), env); err != nil {
		t.Fatalf("declined charge must not error the handler: %v", err)
	}
}

func TestRefund_CompletedPayment(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPaymentRepository(outbox)
	gateway := &stubGateway{
		chargeResult: domain.ChargeResult{Success: true, TransactionID: "TXN-1"},
		refundID:     "REF-1",
	}
	svc := NewService(repo, gateway)

	payment, err := svc.Charge(context.Background(), chargeReq())
	if err != nil {
		t.Fatalf("charge: %v", err)
	}

	refunded, err := svc.Refund(context.Background(), payment.ID, "customer request", "corr-2")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.PaymentStatusRefunded || refunded.RefundID != "REF-1" {
		t.Fatalf("unexpected refund: %+v", refunded)
	}

	// Повторный возврат идемпотентен.
	again, err := svc.Refund(context.Background(), payment.ID, "customer request", "corr-2")
	if err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if again.Status != domain.PaymentStatusRefunded || gateway.refundCalls != 1 {
		t.Fatalf("refund not idempotent: calls=%d", gateway.refundCalls)
	}
}

func TestRefund_PendingPaymentRejected(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	repo := memory.NewPaymentRepository(outbox)
	gateway := &stubGateway{chargeErr: errors.New("gateway timeout")}
	svc := NewService(repo, gateway)

	_, _ = svc.Charge(context.Background(), chargeReq())

	saved, _ := repo.GetByOrder("order-1")
	if _, err := svc.Refund(context.Background(), saved.ID, "", ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestMockGateway_Deterministic(t *testing.T) {
	gateway := NewMockGateway(WithSeed(42), WithoutLatency(), WithChargeSuccessRate(1))

	result, err := gateway.Charge(context.Background(), "order-1", decimal.NewFromFloat(10), "card")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if !result.Success || result.TransactionID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	declining := NewMockGateway(WithSeed(42), WithoutLatency(), WithChargeSuccessRate(0))
	result, err = declining.Charge(context.Background(), "order-1", decimal.NewFromFloat(10), "card")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if result.Success || result.ErrorReason != "card_declined" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
