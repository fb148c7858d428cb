package workflow

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

// stateTTL ограничивает жизнь записи трекера: заказ, не дошедший до конца
// за сутки, интереса для e2e-латентности уже не представляет.
const stateTTL = 24 * time.Hour

// State — запись жизненного цикла заказа под ключом workflow:order:{id}.
type State struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker считает сквозную латентность заказа: от создания до конечного
// статуса. Хранит состояние во внешнем кэше, поэтому переживает рестарты
// координатора.
type Tracker struct {
	cache   domain.Cache
	metrics *metrics.Metrics
	logger  *log.Entry
}

// NewTracker создаёт трекер. metrics может быть nil (латентность не пишется).
func NewTracker(cache domain.Cache, m *metrics.Metrics, logger *log.Entry) *Tracker {
	if logger == nil {
		logger = log.WithField("component", "workflow-tracker")
	}
	return &Tracker{cache: cache, metrics: m, logger: logger}
}

func stateKey(orderID string) string {
	return fmt.Sprintf("workflow:order:%s", orderID)
}

// Started фиксирует создание заказа.
func (t *Tracker) Started(orderID string, at time.Time) {
	state := State{
		OrderID:   orderID,
		Status:    string(domain.OrderStatusPending),
		StartedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}
	if err := t.cache.Set(stateKey(orderID), state, stateTTL); err != nil {
		t.logger.WithError(err).WithField("order_id", orderID).Warn("failed to track order start")
	}
}

// Transitioned фиксирует промежуточный статус заказа.
func (t *Tracker) Transitioned(orderID, status string) {
	var state State
	ok, err := t.cache.Get(stateKey(orderID), &state)
	if err != nil || !ok {
		return
	}
	state.Status = status
	state.UpdatedAt = time.Now().UTC()
	if err := t.cache.Set(stateKey(orderID), state, stateTTL); err != nil {
		t.logger.WithError(err).WithField("order_id", orderID).Warn("failed to track order transition")
	}
}

// Completed фиксирует конечный статус и записывает e2e-латентность.
// Латентность пишется только для заказов, прошедших полный цикл при
// живом трекере: отсутствие записи не считается ошибкой.
func (t *Tracker) Completed(orderID, status string) {
	var state State
	ok, err := t.cache.Get(stateKey(orderID), &state)
	if err != nil {
		t.logger.WithError(err).WithField("order_id", orderID).Warn("failed to read workflow state")
		return
	}

	if t.metrics != nil {
		t.metrics.RecordOrderCompletion(status)
		if ok {
			t.metrics.ObserveOrderE2ELatency(time.Since(state.StartedAt))
		}
	}

	if ok {
		_ = t.cache.Delete(stateKey(orderID))
	}
}
