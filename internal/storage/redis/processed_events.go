package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// ProcessedEventStore хранит отметки об обработанных событиях консьюмеров
// под ключами processed:{group}:{event_id}. TTL ключа ограничивает окно
// дедупликации: ретеншен топиков короче TTL, поэтому повтор старше окна
// физически невозможен.
type ProcessedEventStore struct {
	client *Client
}

// NewProcessedEventStore создаёт хранилище отметок на данном клиенте.
func NewProcessedEventStore(client *Client) *ProcessedEventStore {
	return &ProcessedEventStore{client: client}
}

func processedKey(group, eventID string) string {
	return fmt.Sprintf("processed:%s:%s", group, eventID)
}

// Seen сообщает, есть ли отметка об обработке события данной группой.
func (s *ProcessedEventStore) Seen(group, eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	n, err := s.client.RDB().Exists(ctx, processedKey(group, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}

	return n > 0, nil
}

// MarkProcessed ставит отметку (group, eventID) с TTL.
func (s *ProcessedEventStore) MarkProcessed(group, eventID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if ttl <= 0 {
		ttl = domain.ProcessedEventTTL
	}

	if err := s.client.RDB().Set(ctx, processedKey(group, eventID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}

	return nil
}

var _ domain.ProcessedEventStore = (*ProcessedEventStore)(nil)
