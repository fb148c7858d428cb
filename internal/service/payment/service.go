package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

const (
	sourceService = "payment-service"

	// Предел ожидания ответа шлюза. Дольше ждать нет смысла:
	// processing-платёж доберёт повторная доставка события.
	gatewayTimeout = 10 * time.Second
)

// Service обрабатывает платежи: консьюмит payment.initiated, ходит в шлюз
// и публикует исход через outbox в той же транзакции, что и запись платежа.
type Service struct {
	payments domain.PaymentRepository
	gateway  Gateway
	logger   *log.Entry
	metrics  *metrics.Metrics
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService создаёт платёжный сервис.
func NewService(payments domain.PaymentRepository, gateway Gateway, options ...Option) *Service {
	s := &Service{
		payments: payments,
		gateway:  gateway,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "payment-service")
	}
	return s
}

// HandlePaymentInitiated — обработчик события payment.initiated.
func (s *Service) HandlePaymentInitiated(ctx context.Context, env kafka.Envelope) error {
	var payload kafka.PaymentInitiatedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}

	// Повторная доставка после частичной обработки: платёж по заказу уже
	// есть и дошёл до конечного статуса.
	if existing, err := s.payments.GetByOrder(payload.OrderID); err == nil && existing.Status.Terminal() {
		s.logger.WithFields(log.Fields{
			"order_id":   payload.OrderID,
			"payment_id": existing.ID,
			"status":     existing.Status,
		}).Info("payment already settled, skipping")
		return nil
	}

	_, err := s.Charge(ctx, ChargeRequest{
		OrderID:       payload.OrderID,
		UserID:        payload.UserID,
		Amount:        payload.Amount,
		Method:        paymentMethod(payload.PaymentMethod),
		CorrelationID: env.CorrelationID,
	})
	if err != nil && !errors.Is(err, domain.ErrPaymentDeclined) {
		return err
	}
	// Отказ шлюза — бизнес-исход: payment.failed уже опубликован,
	// ретраить доставку не нужно.
	return nil
}

// ChargeRequest — запрос на списание (из события или HTTP).
type ChargeRequest struct {
	OrderID       string
	UserID        string
	Amount        decimal.Decimal
	Method        string
	CorrelationID string
}

func paymentMethod(method string) string {
	if method == "" {
		return "card"
	}
	return method
}

// loadOrCreate возвращает платёж по заказу, создавая processing-строку,
// только если платежа ещё нет.
func (s *Service) loadOrCreate(req ChargeRequest) (domain.Payment, error) {
	existing, err := s.payments.GetByOrder(req.OrderID)
	switch {
	case err == nil:
		if existing.Status == domain.PaymentStatusProcessing {
			s.logger.WithFields(log.Fields{
				"payment_id": existing.ID,
				"order_id":   existing.OrderID,
			}).Info("retrying gateway for processing payment")
		}
		return existing, nil
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return domain.Payment{}, fmt.Errorf("load payment for order %s: %w", req.OrderID, err)
	}

	now := time.Now().UTC()
	payment := domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   req.OrderID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Method:    paymentMethod(req.Method),
		Status:    domain.PaymentStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := payment.Validate(); len(errs) > 0 {
		return domain.Payment{}, errs[0]
	}

	if err := s.payments.Create(payment, nil); err != nil {
		return domain.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	return payment, nil
}

// Charge проводит списание через шлюз и фиксирует исход.
// Возвращает платёж и ErrPaymentDeclined при отказе шлюза.
// На заказ существует не более одного платежа: processing-строка,
// оставшаяся после сбоя шлюза, переиспользуется при повторе, а
// рассчитанный платёж возвращает прежний исход без похода в шлюз.
func (s *Service) Charge(ctx context.Context, req ChargeRequest) (domain.Payment, error) {
	payment, err := s.loadOrCreate(req)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.Status.Terminal() {
		if payment.Status == domain.PaymentStatusFailed {
			return payment, domain.ErrPaymentDeclined
		}
		return payment, nil
	}

	start := time.Now()
	chargeCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	result, err := s.gateway.Charge(chargeCtx, payment.OrderID, payment.Amount, payment.Method)
	if err != nil {
		// Шлюз недоступен: оставляем processing, повторная доставка
		// события попробует ещё раз.
		return domain.Payment{}, fmt.Errorf("gateway charge: %w", err)
	}

	if result.Success {
		completedAt := time.Now().UTC()
		payment.Status = domain.PaymentStatusCompleted
		payment.TransactionID = result.TransactionID
		payment.CompletedAt = &completedAt

		event, err := kafka.NewOutboxEvent(
			"payment", payment.ID,
			kafka.EventTypePaymentCompleted, kafka.TopicPayments, payment.OrderID,
			req.CorrelationID, sourceService,
			kafka.PaymentCompletedPayload{
				PaymentID:     payment.ID,
				OrderID:       payment.OrderID,
				UserID:        payment.UserID,
				Amount:        payment.Amount,
				TransactionID: payment.TransactionID,
			},
		)
		if err != nil {
			return domain.Payment{}, err
		}
		if err := s.payments.Save(payment, []domain.OutboxEvent{event}); err != nil {
			return domain.Payment{}, fmt.Errorf("save completed payment: %w", err)
		}

		s.observe(payment.Method, "completed", time.Since(start))
		s.logger.WithFields(log.Fields{
			"payment_id":     payment.ID,
			"order_id":       payment.OrderID,
			"transaction_id": payment.TransactionID,
		}).Info("payment completed")
		return payment, nil
	}

	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = result.ErrorReason

	event, err := kafka.NewOutboxEvent(
		"payment", payment.ID,
		kafka.EventTypePaymentFailed, kafka.TopicPayments, payment.OrderID,
		req.CorrelationID, sourceService,
		kafka.PaymentFailedPayload{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			UserID:    payment.UserID,
			Error:     payment.FailureReason,
		},
	)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.payments.Save(payment, []domain.OutboxEvent{event}); err != nil {
		return domain.Payment{}, fmt.Errorf("save failed payment: %w", err)
	}

	s.observe(payment.Method, "failed", time.Since(start))
	s.logger.WithFields(log.Fields{
		"payment_id": payment.ID,
		"order_id":   payment.OrderID,
		"reason":     payment.FailureReason,
	}).Warn("payment declined")

	return payment, domain.ErrPaymentDeclined
}

// Refund возвращает средства по завершённому платежу.
func (s *Service) Refund(ctx context.Context, paymentID, reason, correlationID string) (domain.Payment, error) {
	payment, err := s.payments.Get(paymentID)
	if err != nil {
		return domain.Payment{}, err
	}

	if !payment.Status.CanTransition(domain.PaymentStatusRefunded) {
		if payment.Status == domain.PaymentStatusRefunded {
			// Повторный возврат идемпотентен.
			return payment, nil
		}
		return domain.Payment{}, domain.ErrInvalidTransition
	}

	start := time.Now()
	refundCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	refundID, err := s.gateway.Refund(refundCtx, payment.TransactionID, payment.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrRefundDeclined) {
			s.observe(payment.Method, "refund_declined", time.Since(start))
		}
		return domain.Payment{}, err
	}

	payment.Status = domain.PaymentStatusRefunded
	payment.RefundID = refundID

	event, err := kafka.NewOutboxEvent(
		"payment", payment.ID,
		kafka.EventTypePaymentRefunded, kafka.TopicPayments, payment.OrderID,
		correlationID, sourceService,
		kafka.PaymentRefundedPayload{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			UserID:    payment.UserID,
			Amount:    payment.Amount,
			RefundID:  refundID,
			Reason:    reason,
		},
	)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.payments.Save(payment, []domain.OutboxEvent{event}); err != nil {
		return domain.Payment{}, fmt.Errorf("save refunded payment: %w", err)
	}

	s.observe(payment.Method, "refunded", time.Since(start))
	s.logger.WithFields(log.Fields{
		"payment_id": payment.ID,
		"refund_id":  refundID,
	}).Info("payment refunded")

	return payment, nil
}

// Get возвращает платёж по идентификатору.
func (s *Service) Get(id string) (domain.Payment, error) {
	return s.payments.Get(id)
}

// GetByOrder возвращает платёж по заказу.
func (s *Service) GetByOrder(orderID string) (domain.Payment, error) {
	return s.payments.GetByOrder(orderID)
}

func (s *Service) observe(method, status string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.ObservePaymentProcessing(method, status, duration)
	}
}
