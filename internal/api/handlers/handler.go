// handler.go — основной обработчик API, реализующий generated.ServerInterface.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/pocketshare/internal/api/errors"
	"github.com/bigkaa/pocketshare/internal/api/generated"
	"github.com/bigkaa/pocketshare/internal/service"
	"github.com/bigkaa/pocketshare/internal/ui/auth"
	uimw "github.com/bigkaa/pocketshare/internal/ui/middleware"
)

// Проверка реализации интерфейса.
var _ generated.ServerInterface = (*APIHandler)(nil)

// Services — сервисы, используемые API.
type Services struct {
	Listing    *service.ListingService
	Downloads  *service.DownloadService
	Bundles    *service.BundleService
	Selections *service.SelectionService
	Staging    *service.StagingService
	Uploads    *service.UploadService
}

// APIHandler — обработчик JSON API Pocket Share.
type APIHandler struct {
	listing    *service.ListingService
	downloads  *service.DownloadService
	bundles    *service.BundleService
	selections *service.SelectionService
	staging    *service.StagingService
	uploads    *service.UploadService
	logger     *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		listing:    svc.Listing,
		downloads:  svc.Downloads,
		bundles:    svc.Bundles,
		selections: svc.Selections,
		staging:    svc.Staging,
		uploads:    svc.Uploads,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// GetSession — GET /api/v1/session.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, generated.SessionInfo{
		UserId:    sess.UserID,
		Email:     sess.Email,
		ExpiresAt: sess.ExpiresAtTime(),
	})
}

// ParamErrorHandler — ответ на параметр, не прошедший привязку.
func ParamErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	apierrors.ValidationError(w, err.Error())
}

// --- Вспомогательные функции ---

// requireSession возвращает сессию запроса или отвечает 401.
func requireSession(w http.ResponseWriter, r *http.Request) (*auth.SessionData, bool) {
	sess := uimw.SessionFromContext(r.Context())
	if sess == nil {
		apierrors.Unauthorized(w, "Требуется вход")
		return nil, false
	}
	return sess, true
}

// principal — учётные данные сессии для операций с backend.
func principal(sess *auth.SessionData) service.Principal {
	return service.Principal{UserID: sess.UserID, AccessToken: sess.AccessToken}
}
