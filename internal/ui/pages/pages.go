// Пакет pages — компоненты страниц Pocket Share.
// Каждая страница — templ.Component; строки интерфейса берутся из i18n
// по языку из контекста запроса, вывод экранируется средствами templ.
package pages

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/bigkaa/pocketshare/internal/ui/i18n"
)

// htmlWriter пишет разметку, запоминая первую ошибку записи.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

// text пишет экранированный текст (также годится для значений атрибутов).
func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) url(u templ.SafeURL) {
	h.raw(templ.EscapeString(u))
}

// attrIf пишет атрибут без значения, если cond истинно.
func (h *htmlWriter) attrIf(cond bool, attr string) {
	if cond {
		h.raw(" " + attr)
	}
}

func (h *htmlWriter) render(ctx context.Context, c templ.Component) {
	if h.err == nil {
		h.err = c.Render(ctx, h.w)
	}
}

// component оборачивает функцию разметки в templ.Component.
func component(name string, f func(ctx context.Context, h *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		f(ctx, h)
		if h.err != nil {
			return fmt.Errorf("рендеринг %s: %w", name, h.err)
		}
		return nil
	})
}

func t(ctx context.Context, key string) string {
	return i18n.T(ctx, key)
}

func otherLang(ctx context.Context) string {
	if i18n.LangFromContext(ctx) == "ru" {
		return "en"
	}
	return "ru"
}

// Layout — общие данные каркаса страницы.
type Layout struct {
	// Title — ключ i18n заголовка страницы
	Title string
	// Active — активный пункт меню: home, upload, download
	Active string
	// Email — пользователь сессии
	Email string
}

// LoginData — данные страницы входа.
type LoginData struct {
	Email string
	// Error — сообщение backend или ключ i18n
	Error string
	// Redirect — локальный путь после входа
	Redirect string
}

// HomeData — данные главной страницы.
type HomeData struct {
	Layout
	StagedCount int
}

// FileRow — строка таблицы файлов.
type FileRow struct {
	ID       string
	Name     string
	Size     string
	MimeType string
	Date     string
	Selected bool
}

// FileSection — секция файлов одной группы.
type FileSection struct {
	Group string
	Icon  string
	Files []FileRow
}

// DownloadData — данные страницы скачивания.
type DownloadData struct {
	Layout
	// Error — ошибка листинга (файлов нет)
	Error    string
	Sections []FileSection
	Total    int
	Selected int
}

// AllSelected сообщает, что выбраны все файлы листинга.
func (d DownloadData) AllSelected() bool {
	return d.Total > 0 && d.Selected == d.Total
}

// StagedCard — карточка подготовленного файла.
type StagedCard struct {
	ID         string
	Name       string
	Size       string
	PreviewURL string
}

// StagedSection — подготовленные файлы одной группы.
type StagedSection struct {
	Group string
	Icon  string
	Files []StagedCard
}

// UploadData — данные страницы загрузки.
type UploadData struct {
	Layout
	Sections []StagedSection
	Total    int
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
