package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type reserveKeyStoreInMemory struct {
	mu    sync.Mutex
	items map[string]reserveKeyEntry
}

type reserveKeyEntry struct {
	reservationID string
	expiresAt     time.Time
}

// NewReserveKeyStore возвращает in-memory хранилище ключей идемпотентности
// резервирования.
func NewReserveKeyStore() domain.ReserveKeyStore {
	return &reserveKeyStoreInMemory{items: make(map[string]reserveKeyEntry)}
}

func (s *reserveKeyStoreInMemory) Put(key, reservationID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = time.Hour
	}

	// Первый записавший выигрывает.
	if entry, ok := s.items[key]; ok && time.Now().Before(entry.expiresAt) {
		return nil
	}
	s.items[key] = reserveKeyEntry{reservationID: reservationID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *reserveKeyStoreInMemory) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.reservationID, true, nil
}

var _ domain.ReserveKeyStore = (*reserveKeyStoreInMemory)(nil)
