// Пакет handlers — HTTP-обработчики страниц Pocket Share.
// auth.go — вход по email и паролю, выход.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bigkaa/pocketshare/internal/service"
	"github.com/bigkaa/pocketshare/internal/supabase"
	"github.com/bigkaa/pocketshare/internal/ui/auth"
	uimiddleware "github.com/bigkaa/pocketshare/internal/ui/middleware"
	"github.com/bigkaa/pocketshare/internal/ui/pages"
)

// Authenticator — вход и выход через backend.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// TokenForgetter — сброс кэша проверки токена при выходе.
type TokenForgetter interface {
	Forget(accessToken string)
}

// SessionResources — ресурсы сессии, освобождаемые при выходе.
type SessionResources interface {
	Release(sessionKey string)
}

// AuthHandler — обработчики входа и выхода.
type AuthHandler struct {
	backend        Authenticator
	sessionManager *auth.SessionManager
	events         uimiddleware.EventPublisher
	limiter        *LoginLimiter
	// forgetter — nil при локальной проверке токенов по JWKS
	forgetter TokenForgetter
	resources []SessionResources
	logger    *slog.Logger
}

// NewAuthHandler создаёт обработчики входа и выхода.
// forgetter может быть nil; resources освобождаются по ключу сессии при выходе.
func NewAuthHandler(
	backend Authenticator,
	sessionManager *auth.SessionManager,
	events uimiddleware.EventPublisher,
	limiter *LoginLimiter,
	forgetter TokenForgetter,
	logger *slog.Logger,
	resources ...SessionResources,
) *AuthHandler {
	return &AuthHandler{
		backend:        backend,
		sessionManager: sessionManager,
		events:         events,
		limiter:        limiter,
		forgetter:      forgetter,
		resources:      resources,
		logger:         logger.With(slog.String("component", "ui.auth")),
	}
}

// HandleLoginPage — GET /login.
// Пользователь с действующей сессией сразу перенаправляется.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	target := SafeRedirect(r.URL.Query().Get("redirect"))

	if sess, err := h.sessionManager.GetSessionFromRequest(r); err == nil && sess != nil && !sess.IsExpired() {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	h.renderLogin(w, r, http.StatusOK, pages.LoginData{Redirect: redirectParam(target)})
}

// HandleLogin — POST /login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	target := SafeRedirect(r.URL.Query().Get("redirect"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	data := pages.LoginData{Email: email, Redirect: redirectParam(target)}

	// 1. Ограничение частоты попыток с одного адреса
	if h.limiter != nil && !h.limiter.Allow(ClientIP(r)) {
		h.logger.Warn("Превышена частота попыток входа",
			slog.String("client_ip", ClientIP(r)),
		)
		data.Error = "login.rate_limited"
		h.renderLogin(w, r, http.StatusTooManyRequests, data)
		return
	}

	// 2. Вход через backend
	session, err := h.backend.SignInWithPassword(r.Context(), email, password)
	if err != nil {
		status, msg := loginFailure(err)
		h.logger.Info("Неудачная попытка входа",
			slog.String("email", email),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		data.Error = msg
		h.renderLogin(w, r, status, data)
		return
	}

	// 3. Cookie сессии
	sess := auth.NewSessionData(session)
	if err := h.sessionManager.SetSessionCookie(w, sess); err != nil {
		h.logger.Error("Ошибка установки session cookie", slog.String("error", err.Error()))
		http.Error(w, "Ошибка создания сессии", http.StatusInternalServerError)
		return
	}

	h.events.Publish(service.SessionEvent{
		Event:     service.EventSignedIn,
		UserID:    sess.UserID,
		Email:     sess.Email,
		ExpiresAt: sess.ExpiresAtTime(),
	})
	h.logger.Info("Пользователь вошёл",
		slog.String("user_id", sess.UserID),
		slog.String("email", sess.Email),
	)

	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleLogout — POST /logout.
// Ошибка выхода на стороне backend не мешает очистке локальной сессии.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := h.sessionManager.GetSessionFromRequest(r)
	h.sessionManager.ClearSessionCookie(w)

	if sess != nil {
		if err := h.backend.SignOut(r.Context(), sess.AccessToken); err != nil {
			h.logger.Warn("Ошибка выхода на стороне backend",
				slog.String("user_id", sess.UserID),
				slog.String("error", err.Error()),
			)
		}
		if h.forgetter != nil {
			h.forgetter.Forget(sess.AccessToken)
		}
		for _, res := range h.resources {
			res.Release(sess.ID)
		}
		h.events.Publish(service.SessionEvent{
			Event:  service.EventSignedOut,
			UserID: sess.UserID,
			Email:  sess.Email,
		})
		h.logger.Info("Пользователь вышел", slog.String("user_id", sess.UserID))
	}

	http.Redirect(w, r, uimiddleware.LoginPath, http.StatusSeeOther)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data pages.LoginData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.Login(data).Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга страницы входа", slog.String("error", err.Error()))
	}
}

// loginFailure возвращает статус ответа и сообщение об ошибке входа.
// Сообщение backend показывается как есть; недоступность backend —
// ключ перевода.
func loginFailure(err error) (int, string) {
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Code
		}
		return http.StatusUnauthorized, msg
	}
	return http.StatusBadGateway, "login.backend_unavailable"
}

// SafeRedirect возвращает локальный путь перехода после входа.
// Абсолютные и protocol-relative ссылки заменяются на "/".
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return target
}

// redirectParam — значение параметра redirect для формы входа ("/" не передаётся).
func redirectParam(target string) string {
	if target == "/" {
		return ""
	}
	return target
}
