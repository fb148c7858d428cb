package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

// Producer представляет Kafka producer для публикации конвертов событий
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	metrics  *metrics.Metrics
}

// ProducerOption настраивает producer.
type ProducerOption func(*Producer)

// WithProducerMetrics подключает метрики публикаций.
func WithProducerMetrics(m *metrics.Metrics) ProducerOption {
	return func(p *Producer) {
		p.metrics = m
	}
}

// NewProducer создает новый Kafka producer
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll // Wait for all in-sync replicas
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 5 * time.Millisecond // короткий linger для батчинга
	config.Producer.Idempotent = true                      // Включаем идемпотентность
	config.Net.MaxOpenRequests = 1                         // Для идемпотентности

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	p := &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PublishEnvelope публикует конверт события в топик с заданным ключом партиционирования
func (p *Producer) PublishEnvelope(topic, key string, env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderCorrelationID), Value: []byte(env.CorrelationID)},
			{Key: []byte(HeaderRetryCount), Value: []byte(fmt.Sprintf("%d", env.RetryCount))},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic":      topic,
			"key":        key,
			"event_type": env.EventType,
		}).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordProduced(topic)
	}

	p.logger.WithFields(log.Fields{
		"topic":          topic,
		"key":            key,
		"event_type":     env.EventType,
		"event_id":       env.EventID,
		"correlation_id": env.CorrelationID,
		"partition":      partition,
		"offset":         offset,
	}).Debug("message sent to kafka")

	return nil
}

// PublishToDLQ отправляет конверт в dead-letter, сохраняя исходный топик
// и причину отказа в headers. Ключ — event_id (best-effort spread).
func (p *Producer) PublishToDLQ(originalTopic string, env Envelope, reason string) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     TopicDeadLetter,
		Key:       sarama.StringEncoder(env.EventID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderOriginalTopic), Value: []byte(originalTopic)},
			{Key: []byte(HeaderErrorMessage), Value: []byte(reason)},
			{Key: []byte(HeaderFailedAt), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
			{Key: []byte(HeaderRetryCount), Value: []byte(fmt.Sprintf("%d", env.RetryCount))},
			{Key: []byte(HeaderCorrelationID), Value: []byte(env.CorrelationID)},
		},
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send message to dlq: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordDLQMessage(originalTopic, reason)
	}

	p.logger.WithFields(log.Fields{
		"original_topic": originalTopic,
		"event_id":       env.EventID,
		"event_type":     env.EventType,
		"reason":         reason,
	}).Warn("message diverted to dead-letter")

	return nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
