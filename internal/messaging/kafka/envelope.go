package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// Envelope — конверт события на шине. Формат JSON фиксирован; event_id
// конверта совпадает с id породившей его строки outbox и служит ключом
// идемпотентности у консьюмеров.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
	RetryCount    int             `json:"retry_count"`
}

// NewEnvelope собирает конверт с новым event_id.
func NewEnvelope(eventType EventType, correlationID, sourceService string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     string(eventType),
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		SourceService: sourceService,
		Payload:       data,
		RetryCount:    0,
	}, nil
}

// NewOutboxEvent собирает строку outbox для события данного типа.
// Payload сериализуется сразу: к моменту публикации бизнес-агрегат
// может уже измениться.
func NewOutboxEvent(aggregateType, aggregateID string, eventType EventType, topic, partitionKey, correlationID, sourceService string, payload any) (domain.OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return domain.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Topic:         topic,
		PartitionKey:  partitionKey,
		Payload:       data,
		CorrelationID: correlationID,
		SourceService: sourceService,
	}, nil
}

// EnvelopeFromOutbox собирает конверт из строки outbox.
// event_id конверта равен id строки.
func EnvelopeFromOutbox(event domain.OutboxEvent) Envelope {
	return Envelope{
		EventID:       event.ID,
		EventType:     event.EventType,
		Timestamp:     event.CreatedAt.UTC(),
		CorrelationID: event.CorrelationID,
		SourceService: event.SourceService,
		Payload:       json.RawMessage(event.Payload),
		RetryCount:    event.RetryCount,
	}
}

// Encode сериализует конверт в JSON.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// ParseEnvelope разбирает конверт из тела сообщения.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.EventID == "" {
		return Envelope{}, fmt.Errorf("envelope without event_id")
	}
	return env, nil
}

// DecodePayload десериализует payload конверта в dest.
func (e Envelope) DecodePayload(dest any) error {
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.EventType, err)
	}
	return nil
}
