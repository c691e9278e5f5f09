// bundle.go — архивы пакетного скачивания для браузера.
// Файлы пакета собираются во временный каталог, затем отдаются одним
// zip-архивом по идентификатору. Архивы живут ограниченное время.
package service

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxBundles — максимальное число архивов, хранимых одновременно.
const maxBundles = 256

// Bundle — набор скачанных файлов одного пакета.
type Bundle struct {
	ID        string
	Owner     string
	CreatedAt time.Time

	dir  string
	root *os.Root

	mu     sync.Mutex
	names  []string
	result *BulkResult
}

// Save сохраняет файл в каталог архива.
func (b *Bundle) Save(_ context.Context, name string, body io.Reader) error {
	if err := saveInRoot(b.root, name, body); err != nil {
		return err
	}
	b.mu.Lock()
	b.names = append(b.names, name)
	b.mu.Unlock()
	return nil
}

// SetResult сохраняет итог пакетного скачивания.
func (b *Bundle) SetResult(r *BulkResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result = r
}

// Result возвращает итог пакетного скачивания (nil, пока не завершено).
func (b *Bundle) Result() *BulkResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

// Files возвращает имена сохранённых файлов по алфавиту.
func (b *Bundle) Files() []string {
	b.mu.Lock()
	names := slices.Clone(b.names)
	b.mu.Unlock()
	slices.Sort(names)
	return names
}

// WriteZip записывает все сохранённые файлы в w как zip-архив.
func (b *Bundle) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, name := range b.Files() {
		if err := b.addToZip(zw, name); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("завершение архива: %w", err)
	}
	return nil
}

func (b *Bundle) addToZip(zw *zip.Writer, name string) error {
	f, err := b.root.Open(filepath.FromSlash(name))
	if err != nil {
		return fmt.Errorf("открытие %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("заголовок %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("добавление %s в архив: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("запись %s в архив: %w", name, err)
	}
	return nil
}

// BundleService — хранилище архивов пакетного скачивания.
type BundleService struct {
	dir     string
	bundles *expirable.LRU[string, *Bundle]
	logger  *slog.Logger
}

// NewBundleService создаёт хранилище архивов в каталоге dir.
func NewBundleService(dir string, ttl time.Duration, logger *slog.Logger) (*BundleService, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("создание каталога архивов %s: %w", dir, err)
	}
	s := &BundleService{
		dir:    dir,
		logger: logger.With(slog.String("component", "bundle_service")),
	}
	s.bundles = expirable.NewLRU[string, *Bundle](maxBundles, s.onEvict, ttl)
	return s, nil
}

func (s *BundleService) onEvict(id string, b *Bundle) {
	_ = b.root.Close()
	if err := os.RemoveAll(b.dir); err != nil {
		s.logger.Warn("Ошибка удаления каталога архива",
			slog.String("bundle_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Create создаёт пустой архив владельца owner.
func (s *BundleService) Create(owner string) (*Bundle, error) {
	dir, err := os.MkdirTemp(s.dir, "bundle-*")
	if err != nil {
		return nil, fmt.Errorf("создание каталога архива: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("открытие каталога архива: %w", err)
	}

	b := &Bundle{
		ID:        uuid.NewString(),
		Owner:     owner,
		CreatedAt: time.Now().UTC(),
		dir:       dir,
		root:      root,
	}
	s.bundles.Add(b.ID, b)
	return b, nil
}

// Get возвращает архив владельца owner. Чужой архив не выдаётся.
func (s *BundleService) Get(owner, id string) (*Bundle, error) {
	b, ok := s.bundles.Get(id)
	if !ok || b.Owner != owner {
		return nil, fmt.Errorf("архив %s: %w", id, ErrNotFound)
	}
	return b, nil
}

// Remove удаляет архив и его файлы.
func (s *BundleService) Remove(id string) {
	s.bundles.Remove(id)
}

// Close удаляет все архивы.
func (s *BundleService) Close() {
	s.bundles.Purge()
}
