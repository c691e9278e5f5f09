package service

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/pocketshare/internal/domain/filegroup"
	"github.com/bigkaa/pocketshare/internal/domain/model"
)

// Prometheus-метрики staging.
var (
	stagedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_staged_files_total",
		Help: "Общее количество файлов, принятых в staging.",
	})

	stagedDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_staged_duplicates_total",
		Help: "Количество файлов, отброшенных как дубликаты (имя и размер).",
	})

	stagingAreas = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ps_staging_areas",
		Help: "Количество активных областей staging.",
	})
)

// Incoming — файл, переданный пользователем для staging.
type Incoming struct {
	Name     string
	MimeType string
	Reader   io.Reader
}

// stagingArea — staged-файлы одной сессии в порядке добавления.
type stagingArea struct {
	mu    sync.Mutex
	files []model.StagedUploadFile
}

// StagingService — хранение выбранных для загрузки файлов до отправки.
// Содержимое пишется во временные файлы в dir; область сессии удаляется
// вместе с файлами при Release или по истечении ttl без обращений.
type StagingService struct {
	dir     string
	maxSize int64
	mu      sync.Mutex
	areas   *expirable.LRU[string, *stagingArea]
	logger  *slog.Logger
}

// NewStagingService создаёт сервис staging и каталог dir.
func NewStagingService(dir string, maxSize int64, ttl time.Duration, logger *slog.Logger) (*StagingService, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("создание каталога staging %s: %w", dir, err)
	}

	s := &StagingService{
		dir:     dir,
		maxSize: maxSize,
		logger:  logger.With(slog.String("component", "staging_service")),
	}
	s.areas = expirable.NewLRU[string, *stagingArea](maxSessions, s.onEvict, ttl)
	return s, nil
}

// onEvict удаляет временные файлы вытесненной области.
func (s *StagingService) onEvict(key string, area *stagingArea) {
	area.mu.Lock()
	files := area.files
	area.files = nil
	area.mu.Unlock()

	for _, f := range files {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Ошибка удаления staged-файла",
				slog.String("path", f.Path),
				slog.String("error", err.Error()),
			)
		}
	}
	stagingAreas.Dec()
	s.logger.Debug("Область staging освобождена",
		slog.String("session", key),
		slog.Int("files", len(files)),
	)
}

// area возвращает область сессии, продлевая её TTL.
func (s *StagingService) area(key string, create bool) (*stagingArea, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.areas.Get(key)
	if !ok {
		if !create {
			return nil, false
		}
		a = &stagingArea{}
		stagingAreas.Inc()
	}
	s.areas.Add(key, a)
	return a, true
}

// Stage сохраняет файлы во временный каталог и добавляет их в область
// сессии. Файл с тем же именем и размером, что уже есть в области или
// раньше в том же пакете, отбрасывается. Возвращает добавленные файлы.
func (s *StagingService) Stage(key string, incoming []Incoming) ([]model.StagedUploadFile, error) {
	a, _ := s.area(key, true)

	written := make([]model.StagedUploadFile, 0, len(incoming))
	for _, in := range incoming {
		f, err := s.write(in)
		if err != nil {
			for _, done := range written {
				_ = os.Remove(done.Path)
			}
			return nil, err
		}
		written = append(written, f)
	}

	// Проверка и добавление под одной блокировкой: параллельные запросы
	// с одинаковым файлом не добавляют его дважды
	a.mu.Lock()
	merged := DedupStaged(append(append([]model.StagedUploadFile{}, a.files...), written...))
	added := merged[len(a.files):]
	a.files = merged
	a.mu.Unlock()

	if dropped := len(written) - len(added); dropped > 0 {
		kept := make(map[string]struct{}, len(added))
		for _, f := range added {
			kept[f.ID] = struct{}{}
		}
		for _, f := range written {
			if _, ok := kept[f.ID]; !ok {
				_ = os.Remove(f.Path)
			}
		}
		stagedDuplicatesTotal.Add(float64(dropped))
	}

	stagedFilesTotal.Add(float64(len(added)))
	s.logger.Debug("Файлы добавлены в staging",
		slog.String("session", key),
		slog.Int("added", len(added)),
		slog.Int("received", len(incoming)),
	)
	return append([]model.StagedUploadFile{}, added...), nil
}

// DedupStaged оставляет первый файл для каждой пары (имя, размер),
// сохраняя порядок.
func DedupStaged(files []model.StagedUploadFile) []model.StagedUploadFile {
	seen := make(map[string]struct{}, len(files))
	out := files[:0:0]
	for _, f := range files {
		k := dedupKey(f.Name, f.SizeBytes)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

// write копирует содержимое во временный файл, ограничивая размер.
func (s *StagingService) write(in Incoming) (model.StagedUploadFile, error) {
	tmp, err := os.CreateTemp(s.dir, "staged-*")
	if err != nil {
		return model.StagedUploadFile{}, fmt.Errorf("создание временного файла: %w", err)
	}

	n, err := io.Copy(tmp, io.LimitReader(in.Reader, s.maxSize+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return model.StagedUploadFile{}, fmt.Errorf("запись %s: %w", in.Name, err)
	}
	if n > s.maxSize {
		_ = os.Remove(tmp.Name())
		return model.StagedUploadFile{}, fmt.Errorf("%s: %w (%d байт)", in.Name, ErrTooLarge, s.maxSize)
	}

	f := model.StagedUploadFile{
		ID:        uuid.NewString(),
		Name:      in.Name,
		SizeBytes: n,
		MimeType:  in.MimeType,
		ModTime:   time.Now().UTC(),
		Path:      tmp.Name(),
	}
	if filegroup.Classify(f.MimeType) == filegroup.Image {
		f.PreviewURL = "/api/v1/uploads/staged/" + f.ID + "/preview"
	}
	return f, nil
}

func dedupKey(name string, size int64) string {
	return fmt.Sprintf("%s\x00%d", name, size)
}

// List возвращает staged-файлы сессии в порядке добавления.
func (s *StagingService) List(key string) []model.StagedUploadFile {
	a, ok := s.area(key, false)
	if !ok {
		return []model.StagedUploadFile{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.StagedUploadFile{}, a.files...)
}

// Grouped возвращает staged-файлы сессии по группам.
func (s *StagingService) Grouped(key string) map[filegroup.Group][]model.StagedUploadFile {
	return filegroup.GroupBy(s.List(key), func(f model.StagedUploadFile) string { return f.MimeType })
}

// Get возвращает staged-файл по идентификатору.
func (s *StagingService) Get(key, id string) (model.StagedUploadFile, error) {
	for _, f := range s.List(key) {
		if f.ID == id {
			return f, nil
		}
	}
	return model.StagedUploadFile{}, fmt.Errorf("staged-файл %s: %w", id, ErrNotFound)
}

// Open открывает содержимое staged-файла.
func (s *StagingService) Open(key, id string) (*os.File, model.StagedUploadFile, error) {
	f, err := s.Get(key, id)
	if err != nil {
		return nil, f, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, f, fmt.Errorf("открытие staged-файла %s: %w", f.Name, err)
	}
	return file, f, nil
}

// Remove удаляет staged-файл из области и с диска.
func (s *StagingService) Remove(key, id string) error {
	a, ok := s.area(key, false)
	if !ok {
		return fmt.Errorf("staged-файл %s: %w", id, ErrNotFound)
	}

	a.mu.Lock()
	idx := -1
	for i, f := range a.files {
		if f.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return fmt.Errorf("staged-файл %s: %w", id, ErrNotFound)
	}
	path := a.files[idx].Path
	a.files = append(a.files[:idx], a.files[idx+1:]...)
	a.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("удаление staged-файла: %w", err)
	}
	return nil
}

// Release удаляет область сессии вместе с файлами.
func (s *StagingService) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas.Remove(key)
}

// Close удаляет все области (остановка сервиса).
func (s *StagingService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas.Purge()
}
