package inventory

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepBatch    = 100
)

// Sweeper снимает просроченные резервы. Заказ, не дошедший до оплаты за TTL
// резерва, не должен держать сток вечно.
type Sweeper struct {
	service  *Service
	interval time.Duration
	batch    int
	logger   *log.Entry
}

// NewSweeper создаёт sweeper с интервалом обхода в одну минуту.
func NewSweeper(service *Service, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		batch:    batch,
		logger:   service.logger.WithField("component", "reservation-sweeper"),
	}
}

// Run обходит просроченные резервы до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce выполняет один проход: снимает до batch просроченных резервов
// и публикует inventory.released по каждому затронутому заказу.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	expired, err := s.service.store.ExpireDue(time.Now().UTC(), s.batch, func(r domain.Reservation) []domain.OutboxEvent {
		event, err := kafka.NewOutboxEvent(
			"reservation", r.ID,
			kafka.EventTypeInventoryReleased, kafka.TopicInventory, r.OrderID,
			"", sourceService,
			kafka.InventoryCommandPayload{OrderID: r.OrderID, Reason: "reservation_expired"},
		)
		if err != nil {
			s.logger.WithError(err).Error("failed to build expiry event")
			return nil
		}
		return []domain.OutboxEvent{event}
	})
	if err != nil {
		s.logger.WithError(err).Warn("reservation sweep failed")
		return 0
	}

	if len(expired) > 0 {
		s.logger.WithField("expired", len(expired)).Info("expired reservations released")
		s.service.recordReservations("expired", len(expired))
		s.service.invalidateProducts(reservationSKUs(expired)...)
	}

	s.service.verifyInvariant()
	return len(expired)
}
