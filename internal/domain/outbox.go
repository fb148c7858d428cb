package domain

import "time"

// OutboxStatus описывает состояние записи transactional outbox.
type OutboxStatus string

const (
	// OutboxStatusPending — запись ждёт публикации в брокер.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusPublished — событие успешно доставлено в брокер.
	OutboxStatusPublished OutboxStatus = "published"
	// OutboxStatusFailed — исчерпаны попытки публикации, требуется вмешательство оператора.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxMaxAttempts — число попыток публикации, после которого запись
// помечается failed и поднимается алерт.
const OutboxMaxAttempts = 5

// OutboxEvent — строка transactional outbox. Пишется в той же локальной
// транзакции, что и бизнес-изменение; id строки становится event_id конверта.
type OutboxEvent struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	// PartitionKey задаёт ключ партиционирования при публикации в Kafka.
	PartitionKey string
	// Payload — тело события (JSON), попадает в поле payload конверта.
	Payload       []byte
	CorrelationID string
	SourceService string
	Status        OutboxStatus
	RetryCount    int
	ErrorMessage  string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Validate проверяет обязательные поля записи outbox.
func (e *OutboxEvent) Validate() []error {
	var errs []error

	if e.EventType == "" {
		errs = append(errs, ErrEventTypeRequired)
	}
	if e.Topic == "" {
		errs = append(errs, ErrTopicRequired)
	}
	if e.AggregateID == "" {
		errs = append(errs, ErrAggregateIDRequired)
	}

	return errs
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	FailedCount     int
	OldestPendingAt time.Time
}

// OldestPendingAge возвращает возраст самой старой pending-записи.
func (s OutboxStats) OldestPendingAge(now time.Time) time.Duration {
	if s.PendingCount == 0 || s.OldestPendingAt.IsZero() {
		return 0
	}
	return now.Sub(s.OldestPendingAt)
}
