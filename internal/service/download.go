// download.go — скачивание файлов bucket по ссылкам хранилища.
// Пакетное скачивание выполняется параллельно; ошибка одного файла
// не отменяет остальные.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

// Prometheus-метрики скачивания.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_downloads_total",
		Help: "Общее количество скачиваний файлов (по статусу).",
	}, []string{"status"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ps_download_duration_seconds",
		Help:    "Длительность скачивания одного файла (от запроса до сохранения).",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_download_bytes_total",
		Help: "Общее количество скачанных байт.",
	})

	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ps_active_downloads",
		Help: "Количество выполняющихся скачиваний.",
	})
)

// Saver — получатель содержимого скачанного файла.
// Реализации должны допускать параллельные вызовы Save.
type Saver interface {
	Save(ctx context.Context, name string, body io.Reader) error
}

// Failure — файл, который не удалось скачать.
type Failure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// BulkResult — итог пакетного скачивания в порядке исходного списка.
type BulkResult struct {
	Succeeded []string  `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

// OK сообщает, что все файлы скачаны.
func (r *BulkResult) OK() bool {
	return len(r.Failed) == 0
}

// DownloadService — скачивание файлов из bucket.
type DownloadService struct {
	store       ObjectStore
	httpClient  *http.Client
	concurrency int
	logger      *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
// concurrency ограничивает число одновременных скачиваний пакета (0 — без ограничения).
func NewDownloadService(store ObjectStore, httpClient *http.Client, concurrency int, logger *slog.Logger) *DownloadService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DownloadService{
		store:       store,
		httpClient:  httpClient,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "download_service")),
	}
}

// DownloadOne скачивает файл и передаёт содержимое saver.
// Ошибка возвращается как *DownloadError с причиной для пользователя.
func (s *DownloadService) DownloadOne(ctx context.Context, name string, saver Saver) error {
	activeDownloads.Inc()
	defer activeDownloads.Dec()
	start := time.Now()

	err := s.fetch(ctx, name, saver)
	downloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		downloadsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Ошибка скачивания файла",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
		return &DownloadError{Name: name, Reason: err.Error()}
	}
	downloadsTotal.WithLabelValues("ok").Inc()
	return nil
}

// DownloadMany скачивает все файлы параллельно и собирает результат.
// onSettled (может быть nil) вызывается по мере завершения каждого файла.
func (s *DownloadService) DownloadMany(
	ctx context.Context,
	names []string,
	saver Saver,
	onSettled func(name string, err error),
) *BulkResult {
	errs := make([]error, len(names))

	var settleMu sync.Mutex
	var g errgroup.Group
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, name := range names {
		g.Go(func() error {
			err := s.DownloadOne(ctx, name, saver)
			errs[i] = err
			if onSettled != nil {
				settleMu.Lock()
				onSettled(name, err)
				settleMu.Unlock()
			}
			// Ошибка файла не должна отменять остальные скачивания.
			return nil
		})
	}
	_ = g.Wait()

	result := &BulkResult{Succeeded: []string{}, Failed: []Failure{}}
	for i, name := range names {
		if errs[i] == nil {
			result.Succeeded = append(result.Succeeded, name)
			continue
		}
		reason := errs[i].Error()
		if derr, ok := errs[i].(*DownloadError); ok {
			reason = derr.Reason
		}
		result.Failed = append(result.Failed, Failure{Name: name, Reason: reason})
	}

	s.logger.Info("Пакетное скачивание завершено",
		slog.Int("succeeded", len(result.Succeeded)),
		slog.Int("failed", len(result.Failed)),
	)
	return result
}

// fetch получает ссылку на файл, скачивает его и передаёт saver.
func (s *DownloadService) fetch(ctx context.Context, name string, saver Saver) error {
	link, err := s.store.DownloadURL(ctx, name)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}

	resp, err := s.httpClient.Do(req) //nolint:gosec // G704: URL из хранилища объектов
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return fmt.Errorf("Failed to download file: %s", statusText(resp)) //nolint:staticcheck // ST1005: текст показывается пользователю
	}

	counter := &countingReader{r: resp.Body}
	if err := saver.Save(ctx, name, counter); err != nil {
		return fmt.Errorf("сохранение %s: %w", name, err)
	}
	downloadBytesTotal.Add(float64(counter.n))
	return nil
}

// statusText возвращает текстовую часть статуса ответа ("Not Found").
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// countingReader считает прочитанные байты.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
