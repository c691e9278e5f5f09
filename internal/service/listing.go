package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/pocketshare/internal/domain/filegroup"
	"github.com/bigkaa/pocketshare/internal/domain/model"
	"github.com/bigkaa/pocketshare/internal/supabase"
)

// Prometheus-метрики листинга.
var (
	listingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_listings_total",
		Help: "Общее количество запросов листинга bucket (по статусу).",
	}, []string{"status"})

	listingDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_listing_dropped_entries_total",
		Help: "Количество записей листинга без id и метаданных, пропущенных при разборе.",
	})
)

// ObjectStore — хранилище объектов bucket.
// Реализуется supabase.Storage (Storage API) и s3store.Store (S3).
type ObjectStore interface {
	// ListObjects возвращает первую страницу объектов, отсортированных по имени.
	ListObjects(ctx context.Context, accessToken string) ([]model.ObjectEntry, error)
	// DownloadURL возвращает ссылку, по которой браузер сохранит объект.
	DownloadURL(ctx context.Context, name string) (string, error)
}

// Listing — нормализованный листинг bucket.
type Listing struct {
	Files  []model.DisplayFileRecord
	Groups map[filegroup.Group][]model.DisplayFileRecord
}

// IDs возвращает идентификаторы файлов в порядке листинга.
func (l *Listing) IDs() []string {
	ids := make([]string, 0, len(l.Files))
	for _, f := range l.Files {
		ids = append(ids, f.ID)
	}
	return ids
}

// NamesFor возвращает имена файлов с указанными идентификаторами
// в порядке листинга. Неизвестные идентификаторы пропускаются.
func (l *Listing) NamesFor(ids []string) []string {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var names []string
	for _, f := range l.Files {
		if _, ok := want[f.ID]; ok {
			names = append(names, f.Name)
		}
	}
	return names
}

func emptyListing() *Listing {
	return &Listing{
		Files:  []model.DisplayFileRecord{},
		Groups: filegroup.GroupBy([]model.DisplayFileRecord(nil), displayMime),
	}
}

func displayMime(r model.DisplayFileRecord) string { return r.MimeType }

// ListingService — получение и нормализация листинга bucket.
type ListingService struct {
	store  ObjectStore
	logger *slog.Logger
}

// NewListingService создаёт сервис листинга.
func NewListingService(store ObjectStore, logger *slog.Logger) *ListingService {
	return &ListingService{
		store:  store,
		logger: logger.With(slog.String("component", "listing_service")),
	}
}

// Fetch запрашивает листинг и строит записи для отображения.
// При ошибке backend возвращает пустой листинг и *ListError; повторов нет.
// Записи без id и без метаданных пропускаются.
func (s *ListingService) Fetch(ctx context.Context, accessToken string) (*Listing, error) {
	entries, err := s.store.ListObjects(ctx, accessToken)
	if err != nil {
		listingsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Ошибка получения листинга",
			slog.String("error", err.Error()),
		)
		return emptyListing(), &ListError{Message: listErrorMessage(err)}
	}

	files := make([]model.DisplayFileRecord, 0, len(entries))
	dropped := 0
	for _, e := range entries {
		if e.ID == "" && e.Metadata == nil {
			dropped++
			continue
		}
		rec := model.StorageObjectRecord{ID: e.ID, Name: e.Name}
		if e.Metadata != nil {
			rec.SizeBytes = e.Metadata.Size
			rec.MimeType = e.Metadata.MimeType
			rec.LastModified = e.Metadata.LastModified
		}
		files = append(files, model.ToDisplay(rec))
	}

	if dropped > 0 {
		listingDroppedTotal.Add(float64(dropped))
		s.logger.Debug("Пропущены записи листинга без id и метаданных",
			slog.Int("dropped", dropped),
		)
	}
	listingsTotal.WithLabelValues("ok").Inc()

	return &Listing{
		Files:  files,
		Groups: filegroup.GroupBy(files, displayMime),
	}, nil
}

// listErrorMessage возвращает сообщение backend без служебных префиксов.
func listErrorMessage(err error) string {
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var listErr *ListError
	if errors.As(err, &listErr) {
		return listErr.Message
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
