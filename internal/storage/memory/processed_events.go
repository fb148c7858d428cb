package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type processedEventStoreInMemory struct {
	mu    sync.Mutex
	items map[string]time.Time
}

// NewProcessedEventStore возвращает in-memory хранилище отметок об
// обработанных событиях.
func NewProcessedEventStore() domain.ProcessedEventStore {
	return &processedEventStoreInMemory{items: make(map[string]time.Time)}
}

func (s *processedEventStoreInMemory) Seen(group, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.items[group+":"+eventID]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiresAt) {
		delete(s.items, group+":"+eventID)
		return false, nil
	}
	return true, nil
}

func (s *processedEventStoreInMemory) MarkProcessed(group, eventID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = domain.ProcessedEventTTL
	}
	s.items[group+":"+eventID] = time.Now().Add(ttl)
	return nil
}

var _ domain.ProcessedEventStore = (*processedEventStoreInMemory)(nil)
