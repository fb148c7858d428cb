package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// ReserveKeyTTL — срок жизни соответствия ключ идемпотентности → reservation_id.
const ReserveKeyTTL = time.Hour

// ReserveKeyStore хранит выданные reservation_id по ключам идемпотентности
// резервирования под ключами idempotency:reserve:{key}.
type ReserveKeyStore struct {
	client *Client
}

// NewReserveKeyStore создаёт хранилище ключей резервирования.
func NewReserveKeyStore(client *Client) *ReserveKeyStore {
	return &ReserveKeyStore{client: client}
}

func reserveKey(key string) string {
	return fmt.Sprintf("idempotency:reserve:%s", key)
}

// Put записывает соответствие ключа и reservation_id. Существующее значение
// не перетирается: первый записавший выигрывает.
func (s *ReserveKeyStore) Put(key, reservationID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if ttl <= 0 {
		ttl = ReserveKeyTTL
	}

	if err := s.client.RDB().SetNX(ctx, reserveKey(key), reservationID, ttl).Err(); err != nil {
		return fmt.Errorf("put reserve key: %w", err)
	}

	return nil
}

// Get возвращает reservation_id по ключу и признак его наличия.
func (s *ReserveKeyStore) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	reservationID, err := s.client.RDB().Get(ctx, reserveKey(key)).Result()
	if err != nil {
		if isNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get reserve key: %w", err)
	}

	return reservationID, true, nil
}

var _ domain.ReserveKeyStore = (*ReserveKeyStore)(nil)
