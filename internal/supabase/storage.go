package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bigkaa/pocketshare/internal/domain/model"
)

// ListOptions — параметры листинга bucket.
type ListOptions struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	SortBy SortBy `json:"sortBy"`
}

// SortBy — сортировка листинга.
type SortBy struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

// DefaultListOptions — первая страница из 100 объектов, по имени по возрастанию.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Prefix: "",
		Limit:  100,
		Offset: 0,
		SortBy: SortBy{Column: "name", Order: "asc"},
	}
}

// objectEntry — элемент ответа Storage API. У «папок» id и metadata равны null.
type objectEntry struct {
	ID       *string         `json:"id"`
	Name     string          `json:"name"`
	Metadata *objectMetadata `json:"metadata"`
}

type objectMetadata struct {
	Size         int64  `json:"size"`
	Mimetype     string `json:"mimetype"`
	LastModified string `json:"lastModified"`
}

// Storage — Storage API для одного bucket.
type Storage struct {
	client *Client
	bucket string
}

// NewStorage создаёт Storage API для bucket.
func NewStorage(client *Client, bucket string) *Storage {
	return &Storage{client: client, bucket: bucket}
}

// Bucket возвращает имя bucket.
func (s *Storage) Bucket() string {
	return s.bucket
}

// ListObjects возвращает первую страницу объектов bucket.
// POST /storage/v1/object/list/{bucket}
func (s *Storage) ListObjects(ctx context.Context, accessToken string) ([]model.ObjectEntry, error) {
	path := "/storage/v1/object/list/" + url.PathEscape(s.bucket)

	var raw []objectEntry
	if err := s.client.doJSON(ctx, http.MethodPost, path, accessToken, DefaultListOptions(), &raw); err != nil {
		return nil, fmt.Errorf("листинг bucket %s: %w", s.bucket, err)
	}

	entries := make([]model.ObjectEntry, 0, len(raw))
	for _, e := range raw {
		entry := model.ObjectEntry{Name: e.Name}
		if e.ID != nil {
			entry.ID = *e.ID
		}
		if e.Metadata != nil {
			entry.Metadata = &model.ObjectMetadata{
				Size:     e.Metadata.Size,
				MimeType: e.Metadata.Mimetype,
			}
			if ts, err := time.Parse(time.RFC3339Nano, e.Metadata.LastModified); err == nil {
				entry.Metadata.LastModified = ts
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DownloadURL возвращает публичный URL объекта с параметром download,
// который заставляет браузер сохранить файл. URL бессрочный.
func (s *Storage) DownloadURL(_ context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("пустое имя объекта")
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s?download=",
		s.client.baseURL, url.PathEscape(s.bucket), escapeObjectPath(name)), nil
}

// escapeObjectPath экранирует сегменты ключа объекта, сохраняя разделители.
func escapeObjectPath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
