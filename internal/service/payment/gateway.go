package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// Gateway — платёжный шлюз. Charge и Refund уважают ctx: отмена во время
// сетевой задержки возвращает ctx.Err().
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal, method string) (domain.ChargeResult, error)
	// Refund возвращает идентификатор возврата или ErrRefundDeclined.
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (string, error)
}

const (
	defaultChargeSuccessRate = 0.95
	defaultRefundSuccessRate = 0.98
)

// MockGateway имитирует внешний платёжный провайдер: вероятностный исход
// и задержка, близкая к сетевой. Поведение детерминируется seed-ом.
type MockGateway struct {
	mu  sync.Mutex
	rng *rand.Rand

	chargeSuccessRate float64
	refundSuccessRate float64
	chargeLatencyMin  time.Duration
	chargeLatencyMax  time.Duration
	refundLatencyMin  time.Duration
	refundLatencyMax  time.Duration
}

// GatewayOption настраивает MockGateway.
type GatewayOption func(*MockGateway)

// WithSeed задаёт seed генератора (детерминизм в тестах).
func WithSeed(seed int64) GatewayOption {
	return func(g *MockGateway) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithChargeSuccessRate задаёт долю успешных списаний [0..1].
func WithChargeSuccessRate(rate float64) GatewayOption {
	return func(g *MockGateway) { g.chargeSuccessRate = rate }
}

// WithRefundSuccessRate задаёт долю успешных возвратов [0..1].
func WithRefundSuccessRate(rate float64) GatewayOption {
	return func(g *MockGateway) { g.refundSuccessRate = rate }
}

// WithoutLatency отключает имитацию сетевой задержки (для тестов).
func WithoutLatency() GatewayOption {
	return func(g *MockGateway) {
		g.chargeLatencyMin, g.chargeLatencyMax = 0, 0
		g.refundLatencyMin, g.refundLatencyMax = 0, 0
	}
}

// NewMockGateway создаёт шлюз с продакшен-похожими параметрами:
// 95% успеха и 0.5-2s на списание, 98% и 0.3-1s на возврат.
func NewMockGateway(options ...GatewayOption) *MockGateway {
	g := &MockGateway{
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		chargeSuccessRate: defaultChargeSuccessRate,
		refundSuccessRate: defaultRefundSuccessRate,
		chargeLatencyMin:  500 * time.Millisecond,
		chargeLatencyMax:  2 * time.Second,
		refundLatencyMin:  300 * time.Millisecond,
		refundLatencyMax:  time.Second,
	}
	for _, option := range options {
		option(g)
	}
	return g
}

func (g *MockGateway) roll(rate float64, min, max time.Duration) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ok := g.rng.Float64() < rate
	var latency time.Duration
	if max > min {
		latency = min + time.Duration(g.rng.Int63n(int64(max-min)))
	} else {
		latency = min
	}
	return ok, latency
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Charge имитирует списание средств.
func (g *MockGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal, method string) (domain.ChargeResult, error) {
	ok, latency := g.roll(g.chargeSuccessRate, g.chargeLatencyMin, g.chargeLatencyMax)

	if err := sleep(ctx, latency); err != nil {
		return domain.ChargeResult{}, err
	}

	if !ok {
		return domain.ChargeResult{
			Success:     false,
			ErrorReason: "card_declined",
		}, nil
	}

	return domain.ChargeResult{
		Success:       true,
		TransactionID: "TXN-" + uuid.NewString(),
	}, nil
}

// Refund имитирует возврат средств.
func (g *MockGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (string, error) {
	ok, latency := g.roll(g.refundSuccessRate, g.refundLatencyMin, g.refundLatencyMax)

	if err := sleep(ctx, latency); err != nil {
		return "", err
	}

	if !ok {
		return "", domain.ErrRefundDeclined
	}

	return "REF-" + uuid.NewString(), nil
}

var _ Gateway = (*MockGateway)(nil)
