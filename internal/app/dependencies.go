package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/health"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
	"github.com/vladislavdragonenkov/shopflow/internal/service/outbox"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/shopflow/internal/storage/redis"
	"github.com/vladislavdragonenkov/shopflow/internal/version"
)

// infra — общая инфраструктура одного сервиса: подключения, метрики,
// health-реестр и in-memory заглушки для отсутствующих зависимостей.
type infra struct {
	cfg     Config
	service string
	logger  *log.Entry
	metrics *metrics.Metrics
	health  *health.Registry

	store    *postgres.Store
	redis    *redisstore.Client
	producer *kafka.Producer

	// memOutbox — общий sink событий для memory-репозиториев,
	// используется только когда DATABASE_URL не задан.
	memOutbox *memory.OutboxRepository
}

func newInfra(ctx context.Context, cfg Config, service string) (*infra, error) {
	buildVersion, _, _ := version.Info()

	i := &infra{
		cfg:     cfg,
		service: service,
		logger:  log.WithField("component", service),
		metrics: metrics.New(service),
		health:  health.NewRegistry(service, buildVersion),
	}

	if cfg.DatabaseURL != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		i.store = store
		i.health.RegisterPinger("postgres", store)
	} else {
		i.memOutbox = memory.NewOutboxRepository()
		i.logger.Warn("DATABASE_URL is not set, using in-memory storage")
	}

	if cfg.RedisURL != "" {
		client, err := redisstore.Open(cfg.RedisURL)
		if err != nil {
			i.close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		i.redis = client
		i.health.RegisterPinger("redis", client)
	} else {
		i.logger.Warn("REDIS_URL is not set, using in-memory cache and idempotency marks")
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, kafka.WithProducerMetrics(i.metrics))
		if err != nil {
			i.close()
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		i.producer = producer
	} else {
		i.logger.Warn("KAFKA_BROKERS is not set, event publishing is disabled")
	}

	return i, nil
}

func (i *infra) close() {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			i.logger.WithError(err).Warn("failed to close kafka producer")
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			i.logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if i.store != nil {
		if err := i.store.Close(); err != nil {
			i.logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

func (i *infra) outboxRepo() domain.OutboxRepository {
	if i.store != nil {
		return postgres.NewOutboxRepository(i.store)
	}
	return i.memOutbox
}

func (i *infra) processedEvents() domain.ProcessedEventStore {
	if i.redis != nil {
		return redisstore.NewProcessedEventStore(i.redis)
	}
	return memory.NewProcessedEventStore()
}

func (i *infra) cache() domain.Cache {
	if i.redis != nil {
		return redisstore.NewCache(i.redis)
	}
	return memory.NewCache()
}

func (i *infra) reserveKeys() domain.ReserveKeyStore {
	if i.redis != nil {
		return redisstore.NewReserveKeyStore(i.redis)
	}
	return memory.NewReserveKeyStore()
}

// outboxWorkerJob возвращает фоновую задачу публикации outbox или nil,
// когда producer не настроен.
func (i *infra) outboxWorkerJob() func(context.Context) {
	if i.producer == nil {
		return nil
	}

	publish := outbox.PublisherFunc(func(event domain.OutboxEvent) error {
		return i.producer.PublishEnvelope(event.Topic, event.PartitionKey, kafka.EnvelopeFromOutbox(event))
	})
	worker := outbox.NewWorker(i.outboxRepo(), publish,
		outbox.WithBatchSize(i.cfg.OutboxBatchSize),
		outbox.WithPollInterval(i.cfg.OutboxPollInterval),
		outbox.WithMaxAttempts(i.cfg.OutboxMaxAttempts),
	)
	return worker.Run
}

// newConsumer собирает consumer group с идемпотентностью и DLQ.
// Без брокеров возвращает nil: сервис работает только по HTTP.
func (i *infra) newConsumer(groupID string, topics []string) (*kafka.Consumer, error) {
	if len(i.cfg.KafkaBrokers) == 0 {
		return nil, nil
	}

	return kafka.NewConsumer(i.cfg.KafkaBrokers, groupID, topics,
		kafka.WithProcessedStore(i.processedEvents()),
		kafka.WithDLQ(i.producer),
		kafka.WithMaxRetries(i.cfg.ConsumerMaxRetries),
		kafka.WithBackoffBase(i.cfg.ConsumerRetryBackoff),
		kafka.WithHandlerTimeout(i.cfg.HandlerTimeout),
		kafka.WithConsumerMetrics(i.metrics),
	)
}

// consumerJob оборачивает consumer в фоновую задачу с остановкой по ctx.
func consumerJob(consumer *kafka.Consumer, logger *log.Entry) func(context.Context) {
	return func(ctx context.Context) {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("consumer failed to start")
			return
		}
		<-ctx.Done()
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("consumer stopped with error")
		}
	}
}

// lagMonitorJob следит за отставанием consumer group, если брокеры настроены.
func (i *infra) lagMonitorJob(group string, topics []string) func(context.Context) {
	if len(i.cfg.KafkaBrokers) == 0 {
		return nil
	}

	monitor, err := kafka.NewLagMonitor(i.cfg.KafkaBrokers, group, topics, i.metrics)
	if err != nil {
		i.logger.WithError(err).Warn("failed to create consumer lag monitor")
		return nil
	}
	return func(ctx context.Context) {
		defer func() {
			if err := monitor.Close(); err != nil {
				i.logger.WithError(err).Warn("failed to close lag monitor")
			}
		}()
		monitor.Run(ctx)
	}
}
