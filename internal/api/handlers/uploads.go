// uploads.go — обработчики /api/v1/uploads: подготовка файлов
// к загрузке (staging), превью изображений и загрузка в контейнер.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/pocketshare/internal/api/errors"
	"github.com/bigkaa/pocketshare/internal/api/generated"
	"github.com/bigkaa/pocketshare/internal/domain/filegroup"
	"github.com/bigkaa/pocketshare/internal/domain/model"
	"github.com/bigkaa/pocketshare/internal/service"
)

// stagedFilesField — имя поля multipart с файлами.
const stagedFilesField = "files"

// ListStaged — GET /api/v1/uploads/staged.
func (h *APIHandler) ListStaged(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, h.stagedListing(sess.ID))
}

// StageFiles — POST /api/v1/uploads/staged (multipart/form-data).
// Части читаются потоком и сразу пишутся во временные файлы.
func (h *APIHandler) StageFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data: "+err.Error())
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			apierrors.ValidationError(w, "Ошибка чтения multipart: "+err.Error())
			return
		}

		name := part.FileName()
		if part.FormName() != stagedFilesField || name == "" {
			_ = part.Close()
			continue
		}

		in := service.Incoming{
			Name:     filepath.Base(name),
			MimeType: partMimeType(name, part.Header.Get("Content-Type")),
			Reader:   part,
		}
		_, err = h.staging.Stage(sess.ID, []service.Incoming{in})
		_ = part.Close()
		if err != nil {
			if errors.Is(err, service.ErrTooLarge) {
				apierrors.PayloadTooLarge(w, "Файл "+in.Name+" превышает допустимый размер")
				return
			}
			h.logger.Error("Ошибка сохранения файла",
				slog.String("file", in.Name),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Не удалось сохранить файл "+in.Name)
			return
		}
	}

	apierrors.WriteJSON(w, http.StatusOK, h.stagedListing(sess.ID))
}

// RemoveStaged — DELETE /api/v1/uploads/staged/{id}.
func (h *APIHandler) RemoveStaged(w http.ResponseWriter, r *http.Request, id generated.StagedId) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	if err := h.staging.Remove(sess.ID, id.String()); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		apierrors.InternalError(w, err.Error())
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, h.stagedListing(sess.ID))
}

// PreviewStaged — GET /api/v1/uploads/staged/{id}/preview.
// Превью доступно только для изображений.
func (h *APIHandler) PreviewStaged(w http.ResponseWriter, r *http.Request, id generated.StagedId) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	f, staged, err := h.staging.Open(sess.ID, id.String())
	if err != nil {
		apierrors.NotFound(w, "Файл не найден")
		return
	}
	defer f.Close()

	if filegroup.Classify(staged.MimeType) != filegroup.Image {
		apierrors.NotFound(w, "Превью доступно только для изображений")
		return
	}

	w.Header().Set("Content-Type", staged.MimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, staged.Name, staged.ModTime, f)
}

// UploadStaged — POST /api/v1/uploads.
// Загружает подготовленные файлы по очереди; первая ошибка
// останавливает пакет и возвращается как {ok: false, error}.
func (h *APIHandler) UploadStaged(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	err := h.uploads.UploadStaged(r.Context(), principal(sess), sess.ID)
	if err == nil {
		apierrors.ActionOK(w)
		return
	}

	if errors.Is(err, service.ErrNoSession) {
		apierrors.ActionFailed(w, http.StatusUnauthorized, "Требуется вход")
		return
	}
	var uerr *service.UploadError
	if errors.As(err, &uerr) {
		apierrors.ActionFailed(w, uerr.StatusCode, uerr.Message)
		return
	}
	apierrors.ActionFailed(w, http.StatusInternalServerError, "Internal error")
}

// stagedListing строит ответ со staged-файлами сессии.
func (h *APIHandler) stagedListing(key string) generated.StagedListing {
	grouped := h.staging.Grouped(key)
	resp := generated.StagedListing{
		Files:  mapStaged(h.staging.List(key)),
		Groups: make([]generated.StagedGroup, 0, len(filegroup.All())),
	}
	for _, info := range filegroup.All() {
		resp.Groups = append(resp.Groups, generated.StagedGroup{
			Group: generated.Group(info.Group),
			Label: info.Label,
			Icon:  info.Icon,
			Files: mapStaged(grouped[info.Group]),
		})
	}
	return resp
}

func mapStaged(files []model.StagedUploadFile) []generated.StagedFile {
	out := make([]generated.StagedFile, 0, len(files))
	for _, f := range files {
		sf := generated.StagedFile{
			Id:       uuid.MustParse(f.ID),
			Name:     f.Name,
			Size:     model.FormatSize(f.SizeBytes),
			MimeType: f.MimeType,
		}
		if f.PreviewURL != "" {
			preview := f.PreviewURL
			sf.PreviewUrl = &preview
		}
		out = append(out, sf)
	}
	return out
}

// partMimeType возвращает MIME-тип части; при отсутствии — по расширению.
func partMimeType(name, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return declared
}
