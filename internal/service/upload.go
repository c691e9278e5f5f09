// upload.go — последовательная resumable-загрузка staged-файлов в bucket.
// Файлы пакета отправляются строго по одному; первая ошибка останавливает
// пакет, оставшиеся файлы не загружаются.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/pocketshare/internal/domain/model"
	"github.com/bigkaa/pocketshare/internal/tus"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_uploads_total",
		Help: "Общее количество загрузок файлов (по статусу).",
	}, []string{"status"})

	uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ps_upload_duration_seconds",
		Help:    "Длительность загрузки одного файла.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_upload_bytes_total",
		Help: "Общее количество загруженных байт.",
	})

	uploadRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_upload_retries_total",
		Help: "Количество повторов после временных ошибок загрузки.",
	})

	uploadsResumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_uploads_resumed_total",
		Help: "Количество загрузок, продолженных с сохранённого смещения.",
	})
)

// cacheControl — значение cacheControl в метаданных загрузки.
const cacheControl = "3600"

// Principal — пользователь, от имени которого выполняется операция.
type Principal struct {
	UserID      string
	AccessToken string
}

// UploadService — загрузка файлов в bucket через tus-endpoint backend.
type UploadService struct {
	tus      *tus.Client
	endpoint string
	bucket   string
	staging  *StagingService
	logger   *slog.Logger
}

// UploadOptions — параметры сервиса загрузки.
type UploadOptions struct {
	// Endpoint — resumable-endpoint backend
	Endpoint string
	// Bucket — bucket назначения
	Bucket string
	// HTTPClient — клиент без общего таймаута (загрузка может идти долго)
	HTTPClient *http.Client
	// Store — хранилище отпечатков незавершённых загрузок
	Store tus.Store
	// RetryDelays — расписание повторов (nil — tus.DefaultRetryDelays)
	RetryDelays []time.Duration
	// Sleep — ожидание между повторами (nil — по таймеру)
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(opts UploadOptions, staging *StagingService, logger *slog.Logger) *UploadService {
	client := tus.New(tus.Options{
		Endpoint:                   opts.Endpoint,
		HTTPClient:                 opts.HTTPClient,
		Store:                      opts.Store,
		ChunkSize:                  tus.ChunkSize,
		RetryDelays:                opts.RetryDelays,
		UploadDataDuringCreation:   true,
		RemoveFingerprintOnSuccess: true,
		Sleep:                      opts.Sleep,
		Logger:                     logger,
	})
	return &UploadService{
		tus:      client,
		endpoint: opts.Endpoint,
		bucket:   opts.Bucket,
		staging:  staging,
		logger:   logger.With(slog.String("component", "upload_service")),
	}
}

// UploadStaged загружает все staged-файлы сессии и при успехе
// освобождает область staging.
func (s *UploadService) UploadStaged(ctx context.Context, p Principal, sessionKey string) error {
	if p.AccessToken == "" {
		return ErrNoSession
	}
	files := s.staging.List(sessionKey)
	if err := s.UploadAll(ctx, p, files); err != nil {
		return err
	}
	s.staging.Release(sessionKey)
	return nil
}

// UploadAll загружает файлы по порядку. При первой ошибке возвращает
// *UploadError со статусом и сообщением backend; следующие файлы
// не загружаются. Без токена доступа возвращает ErrNoSession.
func (s *UploadService) UploadAll(ctx context.Context, p Principal, files []model.StagedUploadFile) error {
	if p.AccessToken == "" {
		return ErrNoSession
	}

	for i, f := range files {
		if err := s.uploadOne(ctx, p, f); err != nil {
			uploadsTotal.WithLabelValues("error").Inc()
			uerr := ExtractUploadError(err)
			uerr.File = f.Name
			s.logger.Error("Ошибка загрузки файла, пакет остановлен",
				slog.String("file", f.Name),
				slog.Int("index", i),
				slog.Int("remaining", len(files)-i-1),
				slog.Int("status_code", uerr.StatusCode),
				slog.String("error", err.Error()),
			)
			return uerr
		}
		uploadsTotal.WithLabelValues("ok").Inc()
	}
	return nil
}

// uploadOne загружает один файл.
func (s *UploadService) uploadOne(ctx context.Context, p Principal, f model.StagedUploadFile) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("открытие %s: %w", f.Name, err)
	}
	defer file.Close()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.AccessToken)
	headers.Set("x-upsert", "true")

	contentType := f.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fingerprint := tus.Fingerprint(tus.FileIdentity{
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.SizeBytes,
		ModTime:  f.ModTime,
	}, s.endpoint, p.UserID)

	start := time.Now()
	res, err := s.tus.Upload(ctx, &tus.Upload{
		Reader:      file,
		Size:        f.SizeBytes,
		Fingerprint: fingerprint,
		Metadata: map[string]string{
			"bucketName":   s.bucket,
			"objectName":   f.Name,
			"cacheControl": cacheControl,
			"contentType":  contentType,
		},
		Headers: headers,
		OnProgress: func(sent, total int64) {
			s.logger.Debug("Прогресс загрузки",
				slog.String("file", f.Name),
				slog.Int64("sent", sent),
				slog.Int64("total", total),
			)
		},
	})
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	uploadDuration.Observe(elapsed.Seconds())
	uploadBytesTotal.Add(float64(f.SizeBytes))
	uploadRetriesTotal.Add(float64(res.Retries))
	if res.Resumed {
		uploadsResumedTotal.Inc()
	}

	s.logger.Info("Файл загружен",
		slog.String("file", f.Name),
		slog.Int64("size", f.SizeBytes),
		slog.Bool("resumed", res.Resumed),
		slog.Int("retries", res.Retries),
		slog.Duration("duration", elapsed),
	)
	return nil
}
