package app

import (
	"context"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/service/payment"
	"github.com/vladislavdragonenkov/shopflow/internal/service/user"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/postgres"
	"github.com/vladislavdragonenkov/shopflow/internal/transport/httpapi"
)

const paymentConsumerGroup = "payment-service"

// RunPaymentService запускает платёжный сервис: обработка payment.initiated,
// синхронная оплата и возвраты через mock-шлюз.
func RunPaymentService(ctx context.Context, cfg Config) error {
	inf, err := newInfra(ctx, cfg, "payment-service")
	if err != nil {
		return err
	}
	defer inf.close()

	var payments domain.PaymentRepository
	if inf.store != nil {
		payments = postgres.NewPaymentRepository(inf.store)
	} else {
		payments = memory.NewPaymentRepository(inf.memOutbox)
	}

	service := payment.NewService(payments, payment.NewMockGateway(),
		payment.WithLogger(inf.logger),
		payment.WithMetrics(inf.metrics),
	)

	topics := []string{kafka.TopicPayments}
	consumer, err := inf.newConsumer(paymentConsumerGroup, topics)
	if err != nil {
		return err
	}

	jobs := []func(context.Context){inf.outboxWorkerJob()}
	if consumer != nil {
		consumer.Register(kafka.EventTypePaymentInitiated, service.HandlePaymentInitiated)
		jobs = append(jobs,
			consumerJob(consumer, inf.logger),
			inf.lagMonitorJob(paymentConsumerGroup, topics),
		)
	}

	api := httpapi.NewPaymentRouter(service,
		httpapi.WithMetrics(inf.metrics),
		httpapi.WithLogger(inf.logger),
		httpapi.WithVerifier(user.NewTokenVerifier(cfg.JWTSecret)),
	)

	return inf.serve(ctx, api, jobs...)
}
