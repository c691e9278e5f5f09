// files.go — обработчики /api/v1/files и /api/v1/downloads:
// листинг контейнера, скачивание одного файла и пакетное скачивание.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/pocketshare/internal/api/errors"
	"github.com/bigkaa/pocketshare/internal/api/generated"
	"github.com/bigkaa/pocketshare/internal/domain/filegroup"
	"github.com/bigkaa/pocketshare/internal/domain/model"
	"github.com/bigkaa/pocketshare/internal/service"
)

// ListFiles — GET /api/v1/files.
// Ошибка backend возвращается полем error при пустом списке.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	listing, err := h.listing.Fetch(r.Context(), sess.AccessToken)
	resp := mapListing(listing)
	if err != nil {
		msg := listingFailure(err)
		resp.Error = &msg
	}
	apierrors.WriteJSON(w, http.StatusOK, resp)
}

// DownloadFile — GET /api/v1/files/{name}/download.
// Содержимое передаётся потоком как вложение.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request, name generated.ObjectName) {
	if _, ok := requireSession(w, r); !ok {
		return
	}

	saver := &service.ResponseSaver{W: w}
	err := h.downloads.DownloadOne(r.Context(), name, saver)
	if err == nil {
		return
	}
	if saver.Started() {
		// Заголовки уже отправлены: ответ оборван, клиент увидит неполный файл
		return
	}

	reason := err.Error()
	var derr *service.DownloadError
	if errors.As(err, &derr) {
		reason = derr.Reason
	}
	apierrors.WriteJSON(w, http.StatusBadGateway, apierrors.ActionResult{
		Error: &apierrors.ActionError{Message: reason},
	})
}

// CreateBulkDownload — POST /api/v1/downloads.
// Скачивает выбранные файлы параллельно в архив; ошибка одного файла
// не отменяет остальные. При полном успехе выбор сессии сбрасывается.
func (h *APIHandler) CreateBulkDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req generated.CreateBulkDownloadJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	// 1. Сопоставляем идентификаторы с именами по актуальному листингу
	listing, err := h.listing.Fetch(r.Context(), sess.AccessToken)
	if err != nil {
		apierrors.WriteJSON(w, http.StatusOK, generated.BulkDownloadResult{
			Error:     &generated.ActionError{Message: listingFailure(err)},
			Succeeded: []string{},
			Failed:    []generated.DownloadFailure{},
		})
		return
	}
	names := listing.NamesFor(req.Ids)
	if len(names) == 0 {
		apierrors.ValidationError(w, "Выбранные файлы не найдены")
		return
	}

	// 2. Скачиваем в архив
	bundle, err := h.bundles.Create(sess.ID)
	if err != nil {
		h.logger.Error("Ошибка создания архива", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось подготовить архив")
		return
	}
	result := h.downloads.DownloadMany(r.Context(), names, bundle, nil)
	bundle.SetResult(result)

	resp := generated.BulkDownloadResult{
		Ok:        result.OK(),
		Succeeded: result.Succeeded,
		Failed:    make([]generated.DownloadFailure, 0, len(result.Failed)),
	}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, generated.DownloadFailure{Name: f.Name, Reason: f.Reason})
	}

	// 3. Архив без файлов не хранится
	if len(result.Succeeded) == 0 {
		h.bundles.Remove(bundle.ID)
	} else {
		id, err := uuid.Parse(bundle.ID)
		if err == nil {
			resp.BundleId = &id
		}
	}

	if result.OK() {
		h.selections.For(sess.ID).Clear()
	} else {
		resp.Error = &generated.ActionError{
			Message: fmt.Sprintf("Не удалось скачать файлов: %d из %d", len(result.Failed), len(names)),
		}
	}
	apierrors.WriteJSON(w, http.StatusOK, resp)
}

// GetBulkDownload — GET /api/v1/downloads/{bundleId}.
func (h *APIHandler) GetBulkDownload(w http.ResponseWriter, r *http.Request, bundleID generated.BundleId) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	bundle, err := h.bundles.Get(sess.ID, bundleID.String())
	if err != nil {
		apierrors.NotFound(w, "Архив не найден или устарел")
		return
	}

	filename := fmt.Sprintf("pocketshare-%s.zip", bundle.CreatedAt.Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	if err := bundle.WriteZip(w); err != nil {
		h.logger.Error("Ошибка передачи архива",
			slog.String("bundle_id", bundle.ID),
			slog.String("error", err.Error()),
		)
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

// mapListing преобразует листинг в ответ API. Присутствуют все группы.
func mapListing(l *service.Listing) generated.FileListing {
	resp := generated.FileListing{
		Files:  mapFiles(l.Files),
		Groups: make([]generated.FileGroup, 0, len(filegroup.All())),
	}
	for _, info := range filegroup.All() {
		resp.Groups = append(resp.Groups, generated.FileGroup{
			Group:  generated.Group(info.Group),
			Label:  info.Label,
			Icon:   info.Icon,
			Accept: info.Accept,
			Files:  mapFiles(l.Groups[info.Group]),
		})
	}
	return resp
}

func mapFiles(files []model.DisplayFileRecord) []generated.FileRecord {
	out := make([]generated.FileRecord, 0, len(files))
	for _, f := range files {
		out = append(out, generated.FileRecord{
			Id:       f.ID,
			Name:     f.Name,
			Size:     f.SizeFormatted,
			MimeType: f.MimeType,
			Date:     f.DateFormatted,
		})
	}
	return out
}
