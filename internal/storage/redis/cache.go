package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// CacheTTL — срок жизни кэшированных представлений по умолчанию.
const CacheTTL = 5 * time.Minute

// Cache — read-through кэш JSON-представлений агрегатов (cache-aside):
// промах читает из репозитория и кладёт значение обратно, мутации
// инвалидируют ключ.
type Cache struct {
	client *Client
}

// NewCache создаёт кэш на данном клиенте.
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Set сериализует значение в JSON и сохраняет его с TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if ttl <= 0 {
		ttl = CacheTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.RDB().Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set cache key: %w", err)
	}

	return nil
}

// Get десериализует значение по ключу в dest; false означает промах.
func (c *Cache) Get(key string, dest any) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := c.client.RDB().Get(ctx, key).Bytes()
	if err != nil {
		if isNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("get cache key: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal cache value: %w", err)
	}

	return true, nil
}

// Delete инвалидирует ключ.
func (c *Cache) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.client.RDB().Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete cache key: %w", err)
	}

	return nil
}

var _ domain.Cache = (*Cache)(nil)
