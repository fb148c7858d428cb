package app

import (
	"context"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shopflow/internal/service/order"
	"github.com/vladislavdragonenkov/shopflow/internal/service/user"
	"github.com/vladislavdragonenkov/shopflow/internal/service/workflow"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/postgres"
	"github.com/vladislavdragonenkov/shopflow/internal/transport/httpapi"
)

const orderConsumerGroup = "order-service"

// RunOrderService запускает сервис заказов: создание и отмена по HTTP,
// координация саги по событиям склада и платежей, защита POST /orders
// ключом идемпотентности.
func RunOrderService(ctx context.Context, cfg Config) error {
	inf, err := newInfra(ctx, cfg, "order-service")
	if err != nil {
		return err
	}
	defer inf.close()

	var orders domain.OrderRepository
	var keys domain.IdempotencyRepository
	if inf.store != nil {
		orders = postgres.NewOrderRepository(inf.store)
		keys = postgres.NewIdempotencyRepository(inf.store)
	} else {
		orders = memory.NewOrderRepository(inf.memOutbox)
		keys = memory.NewIdempotencyRepository()
	}

	cache := inf.cache()
	tracker := workflow.NewTracker(cache, inf.metrics, inf.logger)
	coordinator := order.NewCoordinator(orders, inf.outboxRepo(),
		order.WithLogger(inf.logger),
		order.WithMetrics(inf.metrics),
		order.WithCache(cache),
		order.WithTracker(tracker),
	)

	cleanup := idempotency.NewCleanupWorker(keys, idempotency.WithLogger(inf.logger))

	topics := []string{kafka.TopicInventory, kafka.TopicPayments}
	consumer, err := inf.newConsumer(orderConsumerGroup, topics)
	if err != nil {
		return err
	}

	jobs := []func(context.Context){inf.outboxWorkerJob(), cleanup.Run}
	if consumer != nil {
		consumer.Register(kafka.EventTypeInventoryReserved, coordinator.HandleInventoryReserved)
		consumer.Register(kafka.EventTypeInventoryRejected, coordinator.HandleInventoryRejected)
		consumer.Register(kafka.EventTypePaymentCompleted, coordinator.HandlePaymentCompleted)
		consumer.Register(kafka.EventTypePaymentFailed, coordinator.HandlePaymentFailed)
		jobs = append(jobs,
			consumerJob(consumer, inf.logger),
			inf.lagMonitorJob(orderConsumerGroup, topics),
		)
	}

	api := httpapi.NewOrderRouter(coordinator, keys,
		httpapi.WithMetrics(inf.metrics),
		httpapi.WithLogger(inf.logger),
		httpapi.WithVerifier(user.NewTokenVerifier(cfg.JWTSecret)),
	)

	return inf.serve(ctx, api, jobs...)
}
