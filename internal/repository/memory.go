package repository

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/pocketshare/internal/tus"
)

// MemoryFingerprints — хранилище отпечатков в памяти процесса.
// Записи теряются при перезапуске.
type MemoryFingerprints struct {
	mu      sync.RWMutex
	records map[string]tus.PreviousUpload
}

// NewMemoryFingerprints создаёт пустое хранилище.
func NewMemoryFingerprints() *MemoryFingerprints {
	return &MemoryFingerprints{records: make(map[string]tus.PreviousUpload)}
}

// FindUploads возвращает загрузки с отпечатком fingerprint, новые первыми.
func (m *MemoryFingerprints) FindUploads(_ context.Context, fingerprint string) ([]tus.PreviousUpload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []tus.PreviousUpload
	for _, r := range m.records {
		if r.Fingerprint == fingerprint {
			r.Metadata = maps.Clone(r.Metadata)
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b tus.PreviousUpload) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// AddUpload сохраняет загрузку под новым ключом.
func (m *MemoryFingerprints) AddUpload(_ context.Context, u tus.PreviousUpload) (string, error) {
	u.Key = uuid.NewString()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Metadata = maps.Clone(u.Metadata)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[u.Key] = u
	return u.Key, nil
}

// RemoveUpload удаляет запись. Отсутствие записи не считается ошибкой.
func (m *MemoryFingerprints) RemoveUpload(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// PurgeOlderThan удаляет записи, созданные раньше before.
func (m *MemoryFingerprints) PurgeOlderThan(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, r := range m.records {
		if r.CreatedAt.Before(before) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}
