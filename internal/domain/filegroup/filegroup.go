// Пакет filegroup — классификация файлов по MIME-типу в фиксированный
// набор групп для отображения.
package filegroup

import "strings"

// Group — семантическая группа файла.
type Group string

const (
	Image Group = "image"
	PDF   Group = "pdf"
	Text  Group = "text"
	Audio Group = "audio"
	Other Group = "other"
)

// Info — параметры отображения группы.
type Info struct {
	Group Group
	// Label — заголовок секции
	Label string
	// Icon — имя иконки
	Icon string
	// Accept — подсказка для поля выбора файлов
	Accept string
}

// order — порядок секций на страницах.
var order = []Info{
	{Group: Image, Label: "Photos", Icon: "image", Accept: "image/*"},
	{Group: PDF, Label: "PDFs", Icon: "file-text", Accept: ".pdf"},
	{Group: Text, Label: "Text Files", Icon: "file", Accept: ".txt,.doc,.docx"},
	{Group: Audio, Label: "Audio", Icon: "music", Accept: "audio/*"},
	{Group: Other, Label: "Other Files", Icon: "folder", Accept: "*"},
}

// All возвращает описания всех групп в порядке отображения.
func All() []Info {
	out := make([]Info, len(order))
	copy(out, order)
	return out
}

// Lookup возвращает описание группы.
func Lookup(g Group) Info {
	for _, info := range order {
		if info.Group == g {
			return info
		}
	}
	return order[len(order)-1]
}

// Classify возвращает группу по MIME-типу. Порядок проверок фиксирован:
// image/ → application/pdf → audio/ → text/, "document" или .doc → other.
func Classify(mimeType string) Group {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return Image
	case mimeType == "application/pdf":
		return PDF
	case strings.HasPrefix(mimeType, "audio/"):
		return Audio
	case strings.HasPrefix(mimeType, "text/"),
		strings.Contains(mimeType, "document"),
		mimeType == "application/msword":
		return Text
	default:
		return Other
	}
}

// GroupBy раскладывает элементы по группам с сохранением исходного порядка
// внутри каждой группы. Все группы присутствуют в результате, пустые тоже.
func GroupBy[T any](items []T, mimeOf func(T) string) map[Group][]T {
	out := make(map[Group][]T, len(order))
	for _, info := range order {
		out[info.Group] = []T{}
	}
	for _, it := range items {
		g := Classify(mimeOf(it))
		out[g] = append(out[g], it)
	}
	return out
}
