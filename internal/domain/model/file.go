// Пакет model — доменные модели Pocket Share.
// StorageObjectRecord приходит из листинга backend, DisplayFileRecord —
// производное представление для страниц, StagedUploadFile — локально
// выбранный, ещё не загруженный файл.
package model

import (
	"fmt"
	"time"
)

// StorageObjectRecord — объект bucket в том виде, в каком его вернул backend.
// Неизменяем после получения, заменяется целиком при следующем листинге.
type StorageObjectRecord struct {
	// ID — идентификатор объекта в backend
	ID string `json:"id"`
	// Name — уникальный ключ объекта в bucket
	Name string `json:"name"`
	// SizeBytes — размер в байтах
	SizeBytes int64 `json:"size_bytes"`
	// MimeType — объявленный MIME-тип
	MimeType string `json:"mime_type"`
	// LastModified — время последнего изменения (UTC)
	LastModified time.Time `json:"last_modified"`
}

// DisplayFileRecord — запись файла для отображения.
type DisplayFileRecord struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SizeFormatted string `json:"size"`
	MimeType      string `json:"mime_type"`
	DateFormatted string `json:"date"`
}

// ToDisplay строит DisplayFileRecord из записи листинга.
func ToDisplay(r StorageObjectRecord) DisplayFileRecord {
	return DisplayFileRecord{
		ID:            r.ID,
		Name:          r.Name,
		SizeFormatted: FormatSize(r.SizeBytes),
		MimeType:      r.MimeType,
		DateFormatted: FormatDate(r.LastModified),
	}
}

// StagedUploadFile — файл, выбранный пользователем для загрузки.
// Содержимое хранится во временном файле Path до загрузки или удаления.
type StagedUploadFile struct {
	// ID — эфемерный идентификатор (UUID)
	ID string `json:"id"`
	// Name — имя файла, становится ключом объекта в bucket
	Name string `json:"name"`
	// SizeBytes — размер в байтах
	SizeBytes int64 `json:"size_bytes"`
	// MimeType — объявленный MIME-тип
	MimeType string `json:"mime_type"`
	// ModTime — время выбора файла, участвует в отпечатке загрузки
	ModTime time.Time `json:"mod_time"`
	// Path — путь к временному файлу с содержимым
	Path string `json:"-"`
	// PreviewURL — ссылка на превью, только для изображений
	PreviewURL string `json:"preview_url,omitempty"`
}

var sizeUnits = []string{"B", "kB", "MB", "GB", "TB"}

// FormatSize форматирует размер в единицах B/kB/MB/GB/TB по основанию 1024.
// Байты выводятся целым числом, остальные единицы — с одним знаком после точки.
func FormatSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%dB", n)
	}
	v := float64(n)
	unit := 0
	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f%s", v, sizeUnits[unit])
}

// FormatDate форматирует время как DD-MM-YYYY в UTC независимо
// от локального часового пояса.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("02-01-2006")
}

// ObjectEntry — элемент листинга хранилища до нормализации.
// У служебных записей (например, «папок») ID пуст, а Metadata равна nil.
type ObjectEntry struct {
	ID       string
	Name     string
	Metadata *ObjectMetadata
}

// ObjectMetadata — метаданные объекта из листинга.
type ObjectMetadata struct {
	Size         int64
	MimeType     string
	LastModified time.Time
}
