// pages.go — страницы Home, Download и Upload.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/bigkaa/pocketshare/internal/domain/filegroup"
	"github.com/bigkaa/pocketshare/internal/domain/model"
	"github.com/bigkaa/pocketshare/internal/service"
	uimiddleware "github.com/bigkaa/pocketshare/internal/ui/middleware"
	"github.com/bigkaa/pocketshare/internal/ui/pages"
)

// PagesHandler — обработчики страниц за проверкой сессии.
type PagesHandler struct {
	listing    *service.ListingService
	selections *service.SelectionService
	staging    *service.StagingService
	logger     *slog.Logger
}

// NewPagesHandler создаёт обработчики страниц.
func NewPagesHandler(
	listing *service.ListingService,
	selections *service.SelectionService,
	staging *service.StagingService,
	logger *slog.Logger,
) *PagesHandler {
	return &PagesHandler{
		listing:    listing,
		selections: selections,
		staging:    staging,
		logger:     logger.With(slog.String("component", "ui.pages")),
	}
}

// HandleHome — GET /.
func (h *PagesHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, uimiddleware.LoginRedirectURL(r), http.StatusFound)
		return
	}

	h.render(w, r, "home", pages.Home(pages.HomeData{
		Layout:      pages.Layout{Email: session.Email},
		StagedCount: len(h.staging.List(session.ID)),
	}))
}

// HandleDownload — GET /download.
// Ошибка листинга показывается уведомлением при пустом списке.
func (h *PagesHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, uimiddleware.LoginRedirectURL(r), http.StatusFound)
		return
	}

	data := pages.DownloadData{Layout: pages.Layout{Email: session.Email}}

	listing, err := h.listing.Fetch(r.Context(), session.AccessToken)
	if err != nil {
		data.Error = listingFailure(err)
	}

	set := h.selections.For(session.ID)
	for _, info := range filegroup.All() {
		section := pages.FileSection{Group: string(info.Group), Icon: info.Icon}
		for _, f := range listing.Groups[info.Group] {
			selected := set.Has(f.ID)
			if selected {
				data.Selected++
			}
			section.Files = append(section.Files, pages.FileRow{
				ID:       f.ID,
				Name:     f.Name,
				Size:     f.SizeFormatted,
				MimeType: f.MimeType,
				Date:     f.DateFormatted,
				Selected: selected,
			})
		}
		data.Total += len(section.Files)
		data.Sections = append(data.Sections, section)
	}

	h.render(w, r, "download", pages.Download(data))
}

// HandleUpload — GET /upload.
func (h *PagesHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, uimiddleware.LoginRedirectURL(r), http.StatusFound)
		return
	}

	staged := h.staging.Grouped(session.ID)
	data := pages.UploadData{Layout: pages.Layout{Email: session.Email}}

	for _, info := range filegroup.All() {
		section := pages.StagedSection{Group: string(info.Group), Icon: info.Icon}
		for _, f := range staged[info.Group] {
			section.Files = append(section.Files, stagedCard(f))
		}
		data.Total += len(section.Files)
		data.Sections = append(data.Sections, section)
	}
	h.render(w, r, "upload", pages.Upload(data))
}

func (h *PagesHandler) render(w http.ResponseWriter, r *http.Request, page string, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга страницы",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}

func stagedCard(f model.StagedUploadFile) pages.StagedCard {
	return pages.StagedCard{
		ID:         f.ID,
		Name:       f.Name,
		Size:       model.FormatSize(f.SizeBytes),
		PreviewURL: f.PreviewURL,
	}
}

// listingFailure — сообщение об ошибке листинга для пользователя.
func listingFailure(err error) string {
	var listErr *service.ListError
	if errors.As(err, &listErr) {
		return listErr.Message
	}
	return err.Error()
}
