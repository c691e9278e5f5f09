package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/pocketshare/internal/domain/selection"
)

// maxSessions — максимальное число сессий в LRU-хранилищах сервисов.
const maxSessions = 10000

// SelectionService — наборы выбранных файлов по ключу сессии.
// Набор живёт, пока к нему обращаются; через ttl без обращений удаляется.
type SelectionService struct {
	mu   sync.Mutex
	sets *expirable.LRU[string, *selection.Set]
}

// NewSelectionService создаёт хранилище наборов с указанным TTL.
func NewSelectionService(ttl time.Duration) *SelectionService {
	return &SelectionService{
		sets: expirable.NewLRU[string, *selection.Set](maxSessions, nil, ttl),
	}
}

// For возвращает набор сессии, создавая пустой при отсутствии.
// Повторное добавление продлевает TTL набора.
func (s *SelectionService) For(key string) *selection.Set {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets.Get(key)
	if !ok {
		set = selection.New()
	}
	s.sets.Add(key, set)
	return set
}

// Release удаляет набор сессии (выход пользователя).
func (s *SelectionService) Release(key string) {
	s.sets.Remove(key)
}
