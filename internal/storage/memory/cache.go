package memory

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type cacheInMemory struct {
	mu    sync.Mutex
	items map[string]cacheEntry
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewCache возвращает in-memory кэш с той же JSON-семантикой, что Redis-кэш.
func NewCache() domain.Cache {
	return &cacheInMemory{items: make(map[string]cacheEntry)}
}

func (c *cacheInMemory) Set(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *cacheInMemory) Get(key string, dest any) (bool, error) {
	c.mu.Lock()
	entry, ok := c.items[key]
	if ok && time.Now().After(entry.expiresAt) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *cacheInMemory) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

var _ domain.Cache = (*cacheInMemory)(nil)
