package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// callbackStoreInMemory — дедупликация событий платёжного шлюза без Redis.
type callbackStoreInMemory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewCallbackStore возвращает in-memory ProcessedCallbackStore.
func NewCallbackStore() *callbackStoreInMemory {
	return &callbackStoreInMemory{seen: make(map[string]struct{})}
}

// MarkProcessed помечает ключ события; false — событие уже встречалось.
func (s *callbackStoreInMemory) MarkProcessed(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}

// Forget освобождает ключ, чтобы повтор события обрабатывался заново.
func (s *callbackStoreInMemory) Forget(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.seen, key)
	return nil
}

var _ domain.ProcessedCallbackStore = (*callbackStoreInMemory)(nil)
