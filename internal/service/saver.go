package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
)

// ResponseSaver — отдаёт содержимое файла браузеру как вложение.
// Пишет в один http.ResponseWriter, поэтому подходит только для DownloadOne.
type ResponseSaver struct {
	W http.ResponseWriter
	// Size — размер файла для Content-Length (0 — неизвестен)
	Size int64

	started bool
}

// Started сообщает, что заголовки ответа уже отправлены.
func (s *ResponseSaver) Started() bool {
	return s.started
}

// Save записывает заголовки вложения и содержимое в ответ.
func (s *ResponseSaver) Save(_ context.Context, name string, body io.Reader) error {
	base := path.Base(name)
	contentType := mime.TypeByExtension(path.Ext(base))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := s.W.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": base}))
	if s.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(s.Size, 10))
	}
	s.W.WriteHeader(http.StatusOK)
	s.started = true

	if _, err := io.Copy(s.W, body); err != nil {
		return fmt.Errorf("передача %s клиенту: %w", base, err)
	}
	return nil
}

// DirSaver — сохраняет файлы в каталог. Пути вне каталога отклоняются.
type DirSaver struct {
	root *os.Root
}

// NewDirSaver открывает (и при необходимости создаёт) каталог назначения.
func NewDirSaver(dir string) (*DirSaver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("создание каталога %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("открытие каталога %s: %w", dir, err)
	}
	return &DirSaver{root: root}, nil
}

// Save записывает содержимое в файл name внутри каталога.
func (s *DirSaver) Save(_ context.Context, name string, body io.Reader) error {
	return saveInRoot(s.root, name, body)
}

// Close закрывает каталог.
func (s *DirSaver) Close() error {
	return s.root.Close()
}

// saveInRoot создаёт файл name (с промежуточными каталогами) внутри root.
func saveInRoot(root *os.Root, name string, body io.Reader) error {
	rel := filepath.FromSlash(name)
	if dir := filepath.Dir(rel); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("создание каталога %s: %w", dir, err)
		}
	}

	f, err := root.Create(rel)
	if err != nil {
		return fmt.Errorf("создание файла %s: %w", name, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("запись файла %s: %w", name, err)
	}
	return f.Close()
}
