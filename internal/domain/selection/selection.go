// Пакет selection — набор идентификаторов файлов, отмеченных для
// пакетного действия. Набор живёт, пока открыт просмотр списка,
// и никогда не сохраняется.
package selection

import (
	"slices"
	"sync"
)

// Set — потокобезопасный набор выбранных идентификаторов.
// Запросы одной сессии могут приходить параллельно, поэтому все
// операции защищены мьютексом.
type Set struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// New создаёт пустой набор.
func New() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Toggle добавляет id, если его нет, и удаляет, если он есть.
// Возвращает true, если после вызова id выбран.
func (s *Set) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// ToggleAll очищает набор, если его размер равен len(all), иначе
// заменяет набор ровно на all. Это полная замена, а не объединение:
// при частичном выборе вызов выбирает всё, а не инвертирует.
func (s *Set) ToggleAll(all []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ids) == len(all) {
		clear(s.ids)
		return
	}
	s.ids = make(map[string]struct{}, len(all))
	for _, id := range all {
		s.ids[id] = struct{}{}
	}
}

// Clear очищает набор.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ids)
}

// Has сообщает, выбран ли id.
func (s *Set) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Len возвращает число выбранных идентификаторов.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs возвращает выбранные идентификаторы в отсортированном порядке.
func (s *Set) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
