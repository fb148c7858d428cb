package outbox

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

const (
	defaultPollInterval = 1 * time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = domain.OutboxMaxAttempts

	// Порог возраста самой старой pending-записи, после которого backlog
	// считается застрявшим и логируется error.
	defaultStuckThreshold = time.Minute
)

var (
	outboxPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopflow_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shopflow_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shopflow_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
)

// Publisher публикует одно событие outbox в брокер.
type Publisher interface {
	Publish(event domain.OutboxEvent) error
}

// PublisherFunc адаптирует функцию к интерфейсу Publisher.
type PublisherFunc func(event domain.OutboxEvent) error

// Publish вызывает f(event).
func (f PublisherFunc) Publish(event domain.OutboxEvent) error {
	return f(event)
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(w *Worker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации до перевода строки в failed.
func WithMaxAttempts(maxAttempts int) Option {
	return func(w *Worker) {
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
	}
}

// WithStuckThreshold задаёт порог возраста backlog для алерта.
func WithStuckThreshold(threshold time.Duration) Option {
	return func(w *Worker) {
		if threshold > 0 {
			w.stuckThreshold = threshold
		}
	}
}

// Worker публикует pending-события из транзакционного outbox в брокер.
// Публикация асинхронна относительно бизнес-транзакции, поэтому гарантия
// получается at-least-once: упавший между publish и commit воркер
// опубликует строку повторно, дубликат отсекут идемпотентные консьюмеры.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      Publisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	stuckThreshold time.Duration
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher Publisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		stuckThreshold: defaultStuckThreshold,
	}
	for _, option := range options {
		option(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	return w
}

// Run запускает периодический polling outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		full := w.ProcessOnce(ctx)
		if full {
			// Под бэклогом не ждём тика: выбираем batch за batch-ем,
			// пока очередь не обмелеет.
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce выполняет один polling-цикл и сообщает, был ли батч полным.
func (w *Worker) ProcessOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	result, err := w.repo.ProcessPending(w.batchSize, w.maxAttempts, w.publisher.Publish)
	if err != nil {
		w.logger.WithError(err).Warn("outbox batch failed")
		return false
	}

	if result.Published > 0 {
		outboxPublishAttempts.WithLabelValues("sent").Add(float64(result.Published))
	}
	if result.Retried > 0 {
		outboxPublishAttempts.WithLabelValues("retry_error").Add(float64(result.Retried))
	}

	// Исчерпанные строки требуют ручного вмешательства: брокер не принял
	// событие maxAttempts раз подряд.
	for _, failed := range result.Failed {
		outboxPublishAttempts.WithLabelValues("failed").Inc()
		w.logger.WithFields(log.Fields{
			"outbox_id":   failed.ID,
			"event_type":  failed.EventType,
			"topic":       failed.Topic,
			"retry_count": failed.RetryCount,
			"error":       failed.ErrorMessage,
		}).Error("outbox event moved to failed, manual intervention required")
	}

	w.refreshBacklogMetrics()

	return result.Processed >= w.batchSize
}

func (w *Worker) refreshBacklogMetrics() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Debug("failed to read outbox stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))

	age := stats.OldestPendingAge(time.Now().UTC())
	outboxOldestPendingAge.Set(age.Seconds())

	if stats.PendingCount > 0 && age > w.stuckThreshold {
		w.logger.WithFields(log.Fields{
			"pending":    stats.PendingCount,
			"oldest_age": age.String(),
		}).Error("outbox backlog is stuck")
	}
}
