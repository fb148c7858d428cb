package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEnvelope(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		if _, err := ParseEnvelope(value); err != nil {
			return err
		}
		return nil
	})

	env, err := NewEnvelope(EventTypeOrderCreated, "corr-1", "order-service", OrderCreatedPayload{
		OrderID: "order-1",
		UserID:  "user-1",
	})
	if err != nil {
		t.Fatalf("new envelope failed: %v", err)
	}

	if err := producer.PublishEnvelope(TopicOrders, "order-1", env); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEnvelope_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	env, err := NewEnvelope(EventTypeOrderCreated, "", "order-service", OrderCreatedPayload{OrderID: "order-1"})
	if err != nil {
		t.Fatalf("new envelope failed: %v", err)
	}

	if err := producer.PublishEnvelope(TopicOrders, "order-1", env); err == nil {
		t.Fatal("expected publish error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishToDLQ(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		// Тело в dead-letter остаётся исходным конвертом.
		if _, err := ParseEnvelope(value); err != nil {
			return err
		}
		return nil
	})

	env, err := NewEnvelope(EventTypePaymentInitiated, "corr-2", "order-service", PaymentInitiatedPayload{OrderID: "order-1"})
	if err != nil {
		t.Fatalf("new envelope failed: %v", err)
	}

	if err := producer.PublishToDLQ(TopicPayments, env, "handler exhausted retries"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
