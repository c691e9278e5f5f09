// Пакет s3store — драйвер хранилища объектов поверх S3-совместимого
// endpoint backend (minio-go). Альтернатива Storage API: листинг
// через ListObjectsV2, ссылки на скачивание — presigned URL.
package s3store

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/pocketshare/internal/domain/model"
)

// ListLimit — число объектов первой страницы листинга.
const ListLimit = 100

// PresignExpiry — срок действия ссылки на скачивание. S3 не выдаёт
// бессрочные ссылки, семь суток — максимум для подписи V4.
const PresignExpiry = 7 * 24 * time.Hour

// Options — параметры подключения.
type Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	UseSSL    bool
	Bucket    string
}

// Store — хранилище объектов одного bucket.
type Store struct {
	api    *minio.Client
	bucket string
	logger *slog.Logger
}

// New создаёт драйвер S3.
func New(opts Options, logger *slog.Logger) (*Store, error) {
	api, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("создание S3-клиента %s: %w", opts.Endpoint, err)
	}
	return &Store{
		api:    api,
		bucket: opts.Bucket,
		logger: logger.With(slog.String("component", "s3_store")),
	}, nil
}

// Bucket возвращает имя bucket.
func (s *Store) Bucket() string {
	return s.bucket
}

// ListObjects возвращает до ListLimit объектов верхнего уровня bucket
// в лексикографическом порядке ключей. Токен пользователя не используется:
// доступ определяется ключами S3.
func (s *Store) ListObjects(ctx context.Context, _ string) ([]model.ObjectEntry, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make([]model.ObjectEntry, 0, ListLimit)
	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: false}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("листинг bucket %s: %w", s.bucket, obj.Err)
		}
		if len(entries) == ListLimit {
			break
		}

		// Общие префиксы («папки») приходят без ETag и метаданных.
		if strings.HasSuffix(obj.Key, "/") {
			entries = append(entries, model.ObjectEntry{Name: obj.Key})
			continue
		}

		contentType := obj.ContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(path.Ext(obj.Key))
		}
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			contentType = strings.TrimSpace(contentType[:i])
		}

		entries = append(entries, model.ObjectEntry{
			ID:   obj.ETag,
			Name: obj.Key,
			Metadata: &model.ObjectMetadata{
				Size:         obj.Size,
				MimeType:     contentType,
				LastModified: obj.LastModified.UTC(),
			},
		})
	}
	return entries, nil
}

// DownloadURL возвращает presigned URL, заставляющий браузер сохранить файл.
func (s *Store) DownloadURL(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("пустое имя объекта")
	}

	params := url.Values{}
	params.Set("response-content-disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(name)}))

	u, err := s.api.PresignedGetObject(ctx, s.bucket, name, PresignExpiry, params)
	if err != nil {
		return "", fmt.Errorf("подпись ссылки на %s: %w", name, err)
	}
	return u.String(), nil
}
