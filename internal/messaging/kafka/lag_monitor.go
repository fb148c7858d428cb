package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

// LagMonitor периодически сравнивает закоммиченные offset'ы consumer group
// с новейшими offset'ами партиций и публикует лаг в метрики.
type LagMonitor struct {
	client   sarama.Client
	admin    sarama.ClusterAdmin
	group    string
	topics   []string
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *log.Entry
}

// NewLagMonitor создаёт монитор лага для consumer group.
func NewLagMonitor(brokers []string, group string, topics []string, m *metrics.Metrics) (*LagMonitor, error) {
	config := sarama.NewConfig()

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create cluster admin: %w", err)
	}

	return &LagMonitor{
		client:   client,
		admin:    admin,
		group:    group,
		topics:   topics,
		interval: 30 * time.Second,
		metrics:  m,
		logger: log.WithFields(log.Fields{
			"component": "kafka-lag-monitor",
			"group":     group,
		}),
	}, nil
}

// Run опрашивает offset'ы до отмены контекста.
func (m *LagMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.WithField("topics", m.topics).Info("lag monitor started")

	for {
		select {
		case <-ticker.C:
			if err := m.collect(); err != nil {
				m.logger.WithError(err).Warn("failed to collect consumer lag")
			}
		case <-ctx.Done():
			m.logger.Info("lag monitor stopped")
			return
		}
	}
}

func (m *LagMonitor) collect() error {
	partitions := make(map[string][]int32, len(m.topics))
	for _, topic := range m.topics {
		parts, err := m.client.Partitions(topic)
		if err != nil {
			return fmt.Errorf("list partitions for %s: %w", topic, err)
		}
		partitions[topic] = parts
	}

	resp, err := m.admin.ListConsumerGroupOffsets(m.group, partitions)
	if err != nil {
		return fmt.Errorf("list group offsets: %w", err)
	}

	for topic, parts := range partitions {
		for _, partition := range parts {
			newest, err := m.client.GetOffset(topic, partition, sarama.OffsetNewest)
			if err != nil {
				m.logger.WithError(err).WithFields(log.Fields{
					"topic":     topic,
					"partition": partition,
				}).Warn("failed to get newest offset")
				continue
			}

			block := resp.GetBlock(topic, partition)
			if block == nil || block.Offset < 0 {
				// Группа ещё не коммитила offset в этой партиции.
				continue
			}

			lag := newest - block.Offset
			if lag < 0 {
				lag = 0
			}
			m.metrics.SetConsumerLag(topic, partition, m.group, lag)
		}
	}

	return nil
}

// Close освобождает соединения монитора.
func (m *LagMonitor) Close() error {
	// Закрытие admin закрывает и разделяемый client.
	return m.admin.Close()
}
