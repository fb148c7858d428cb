package app

import (
	"context"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/service/inventory"
	"github.com/vladislavdragonenkov/shopflow/internal/service/user"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/postgres"
	"github.com/vladislavdragonenkov/shopflow/internal/transport/httpapi"
)

const inventoryConsumerGroup = "inventory-service"

// RunInventoryService запускает складской сервис: каталог товаров,
// резервирование под заказы, команды confirm/release и sweeper
// просроченных резервов.
func RunInventoryService(ctx context.Context, cfg Config) error {
	inf, err := newInfra(ctx, cfg, "inventory-service")
	if err != nil {
		return err
	}
	defer inf.close()

	var products domain.ProductRepository
	var store domain.InventoryStore
	if inf.store != nil {
		products = postgres.NewProductRepository(inf.store)
		store = postgres.NewInventoryStore(inf.store)
	} else {
		mem := memory.NewInventory(inf.memOutbox)
		products = mem
		store = mem
	}

	service := inventory.NewService(products, store,
		inventory.WithLogger(inf.logger),
		inventory.WithMetrics(inf.metrics),
		inventory.WithReservationTTL(cfg.ReservationTTL),
		inventory.WithReserveKeys(inf.reserveKeys()),
		inventory.WithCache(inf.cache()),
	)
	sweeper := inventory.NewSweeper(service, cfg.SweepInterval, cfg.OutboxBatchSize)

	topics := []string{kafka.TopicOrders, kafka.TopicInventory}
	consumer, err := inf.newConsumer(inventoryConsumerGroup, topics)
	if err != nil {
		return err
	}

	jobs := []func(context.Context){inf.outboxWorkerJob(), sweeper.Run}
	if consumer != nil {
		consumer.Register(kafka.EventTypeOrderCreated, service.HandleOrderCreated)
		consumer.Register(kafka.EventTypeInventoryConfirm, service.HandleInventoryConfirm)
		consumer.Register(kafka.EventTypeInventoryRelease, service.HandleInventoryRelease)
		jobs = append(jobs,
			consumerJob(consumer, inf.logger),
			inf.lagMonitorJob(inventoryConsumerGroup, topics),
		)
	}

	api := httpapi.NewInventoryRouter(service,
		httpapi.WithMetrics(inf.metrics),
		httpapi.WithLogger(inf.logger),
		httpapi.WithVerifier(user.NewTokenVerifier(cfg.JWTSecret)),
	)

	return inf.serve(ctx, api, jobs...)
}
