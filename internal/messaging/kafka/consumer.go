package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

// EventHandler обрабатывает конверт события.
type EventHandler func(ctx context.Context, env Envelope) error

// Consumer — идемпотентный Kafka consumer с реестром обработчиков по типу
// события, retry с экспоненциальным backoff и отправкой в DLQ.
//
// Протокол на сообщение: разобрать конверт → проверить event_id в store
// обработанных (дубликат — пропустить) → найти обработчик (неизвестный тип —
// залогировать и пропустить) → вызвать с retry → при успехе поставить отметку
// и закоммитить offset; при исчерпании попыток — отдать в dead-letter и
// закоммитить offset.
type Consumer struct {
	consumer       sarama.ConsumerGroup
	group          string
	topics         []string
	handlers       map[string]EventHandler
	processed      domain.ProcessedEventStore
	dlq            *Producer
	maxRetries     int
	backoffBase    time.Duration
	handlerTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *log.Entry
	wg             sync.WaitGroup
}

// ConsumerOption настраивает consumer.
type ConsumerOption func(*Consumer)

// WithProcessedStore подключает store обработанных событий (идемпотентность).
func WithProcessedStore(store domain.ProcessedEventStore) ConsumerOption {
	return func(c *Consumer) {
		c.processed = store
	}
}

// WithDLQ подключает producer для отправки в dead-letter.
func WithDLQ(producer *Producer) ConsumerOption {
	return func(c *Consumer) {
		c.dlq = producer
	}
}

// WithMaxRetries задаёт число повторов обработчика после первой неудачи.
func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) {
		c.maxRetries = n
	}
}

// WithBackoffBase задаёт базовую задержку между повторами (удваивается).
func WithBackoffBase(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.backoffBase = d
	}
}

// WithHandlerTimeout задаёт таймаут одной попытки обработчика.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.handlerTimeout = d
	}
}

// WithConsumerMetrics подключает метрики обработки.
func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// NewConsumer создает consumer group с ручным коммитом offset.
func NewConsumer(brokers []string, groupID string, topics []string, opts ...ConsumerOption) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	c := &Consumer{
		consumer:       consumer,
		group:          groupID,
		topics:         topics,
		handlers:       make(map[string]EventHandler),
		maxRetries:     3,
		backoffBase:    100 * time.Millisecond,
		handlerTimeout: 30 * time.Second,
		logger: log.WithFields(log.Fields{
			"component": "kafka-consumer",
			"group":     groupID,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Register привязывает обработчик к типу события.
// Вызывается до Start; во время работы реестр не меняется.
func (c *Consumer) Register(eventType EventType, handler EventHandler) {
	c.handlers[string(eventType)] = handler
}

// Start запускает consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume должен вызываться в цикле, так как при rebalance он завершается
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}

			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := c.processMessage(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("message processing failed, offset not committed")
				// Не маркируем сообщение - будет повторная доставка
				continue
			}

			// Offset коммитится только после успешной обработки и отметки
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage выполняет протокол идемпотентной обработки одного сообщения.
// nil означает, что offset можно коммитить.
func (c *Consumer) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	started := time.Now()

	env, err := ParseEnvelope(message.Value)
	if err != nil {
		// Нечитаемый конверт ретраями не лечится - сразу в DLQ.
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":  message.Topic,
			"offset": message.Offset,
		}).Error("failed to parse envelope")
		if c.dlq != nil {
			poison := Envelope{
				EventID:   uuid.NewString(),
				EventType: "unparseable",
				Timestamp: time.Now().UTC(),
				Payload:   message.Value,
			}
			if dlqErr := c.dlq.PublishToDLQ(message.Topic, poison, err.Error()); dlqErr != nil {
				return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
			}
		}
		return nil
	}

	logger := c.logger.WithFields(log.Fields{
		"topic":          message.Topic,
		"event_id":       env.EventID,
		"event_type":     env.EventType,
		"correlation_id": env.CorrelationID,
	})

	if c.processed != nil {
		seen, seenErr := c.processed.Seen(c.group, env.EventID)
		if seenErr != nil {
			// Store недоступен: обрабатываем как впервые, downstream-идемпотентность
			// прикрывает возможный дубликат.
			logger.WithError(seenErr).Warn("processed-event store lookup failed")
		} else if seen {
			if c.metrics != nil {
				c.metrics.RecordDuplicate(message.Topic, env.EventType)
			}
			logger.Info("duplicate event skipped")
			return nil
		}
	}

	handler, ok := c.handlers[env.EventType]
	if !ok {
		logger.Warn("no handler registered for event type, skipping")
		return nil
	}

	err = c.invokeWithRetry(ctx, handler, env, logger)

	if c.metrics != nil {
		c.metrics.ObserveMessageProcessing(message.Topic, env.EventType, time.Since(started))
	}

	if err == nil {
		if c.processed != nil {
			if markErr := c.processed.MarkProcessed(c.group, env.EventID, domain.ProcessedEventTTL); markErr != nil {
				logger.WithError(markErr).Warn("failed to mark event processed")
			}
		}
		if c.metrics != nil {
			c.metrics.RecordConsumed(message.Topic, c.group)
		}
		return nil
	}

	// Исчерпаны все попытки - отправляем в DLQ
	if c.dlq != nil {
		if dlqErr := c.dlq.PublishToDLQ(message.Topic, env, err.Error()); dlqErr != nil {
			return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
		}
		logger.WithError(err).Info("message sent to DLQ after max retries")
		return nil // Offset коммитим: сообщение живёт дальше в dead-letter
	}

	return err
}

// invokeWithRetry вызывает обработчик с ограничением времени попытки и
// экспоненциальным backoff между попытками.
func (c *Consumer) invokeWithRetry(ctx context.Context, handler EventHandler, env Envelope, logger *log.Entry) error {
	backoff := c.backoffBase

	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
		err = handler(attemptCtx, env)
		cancel()

		if err == nil {
			return nil
		}
		if attempt == c.maxRetries {
			break
		}

		logger.WithError(err).WithFields(log.Fields{
			"attempt":     attempt + 1,
			"max_retries": c.maxRetries,
		}).Warn("handler failed, will retry")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	return err
}
