// Пакет middleware — HTTP middleware для страниц и API Pocket Share.
// auth.go — проверка сессии (cookie-based), авто-refresh токенов.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	apierrors "github.com/bigkaa/pocketshare/internal/api/errors"
	apimw "github.com/bigkaa/pocketshare/internal/api/middleware"
	"github.com/bigkaa/pocketshare/internal/service"
	"github.com/bigkaa/pocketshare/internal/supabase"
	"github.com/bigkaa/pocketshare/internal/ui/auth"
)

// contextKey — тип для ключей контекста.
type contextKey string

const (
	// ContextKeySession — данные сессии в контексте запроса.
	ContextKeySession contextKey = "ui_session"
)

// LoginPath — страница входа.
const LoginPath = "/login"

// SessionRefresher — обновление сессии по refresh token.
type SessionRefresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (*supabase.Session, error)
}

// EventPublisher — публикация событий сессии.
type EventPublisher interface {
	Publish(ev service.SessionEvent)
}

// Gate — middleware проверки сессии: извлекает сессию из зашифрованного
// cookie, обновляет просроченный access token, проверяет токен.
type Gate struct {
	sessionManager *auth.SessionManager
	refresher      SessionRefresher
	verifier       auth.TokenVerifier
	events         EventPublisher
	logger         *slog.Logger
}

// NewGate создаёт middleware проверки сессии.
func NewGate(
	sessionManager *auth.SessionManager,
	refresher SessionRefresher,
	verifier auth.TokenVerifier,
	events EventPublisher,
	logger *slog.Logger,
) *Gate {
	return &Gate{
		sessionManager: sessionManager,
		refresher:      refresher,
		verifier:       verifier,
		events:         events,
		logger:         logger.With(slog.String("component", "auth_gate")),
	}
}

// errBackendUnavailable — токен не удалось проверить: backend недоступен.
var errBackendUnavailable = errors.New("backend недоступен")

// Pages возвращает middleware для страниц: без сессии — redirect на
// /login?redirect=<исходный путь и query>.
func (g *Gate) Pages() func(http.Handler) http.Handler {
	return g.middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, errBackendUnavailable) {
			http.Error(w, "Сервис хранения недоступен, попробуйте позже", http.StatusBadGateway)
			return
		}
		http.Redirect(w, r, LoginRedirectURL(r), http.StatusFound)
	})
}

// API возвращает middleware для JSON API: без сессии — 401.
func (g *Gate) API() func(http.Handler) http.Handler {
	return g.middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
		if errors.Is(err, errBackendUnavailable) {
			apierrors.BackendUnavailable(w, "Сервис хранения недоступен")
			return
		}
		apierrors.Unauthorized(w, "Требуется вход")
	})
}

// LoginRedirectURL строит адрес страницы входа с возвратом на текущий запрос.
func LoginRedirectURL(r *http.Request) string {
	return LoginPath + "?" + url.Values{"redirect": {r.URL.RequestURI()}}.Encode()
}

func (g *Gate) middleware(deny func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := g.resolve(w, r)
			if err != nil {
				deny(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// resolve извлекает, при необходимости обновляет и проверяет сессию.
// При отказе cookie сессии очищается.
func (g *Gate) resolve(w http.ResponseWriter, r *http.Request) (*auth.SessionData, error) {
	// 1. Извлекаем сессию из cookie
	session, err := g.sessionManager.GetSessionFromRequest(r)
	if err != nil {
		g.logger.Debug("Ошибка чтения сессии",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		// Повреждённый cookie — очищаем
		g.sessionManager.ClearSessionCookie(w)
		return nil, service.ErrNoSession
	}

	// 2. Сессия отсутствует
	if session == nil {
		return nil, service.ErrNoSession
	}

	// 3. Проверяем срок действия access token
	if session.IsExpired() {
		fresh, err := g.refresher.RefreshSession(r.Context(), session.RefreshToken)
		if err != nil {
			g.logger.Info("Не удалось обновить сессию",
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
			g.sessionManager.ClearSessionCookie(w)
			return nil, service.ErrNoSession
		}

		refreshed := session.Refreshed(fresh)
		if err := g.sessionManager.SetSessionCookie(w, refreshed); err != nil {
			g.logger.Error("Ошибка обновления session cookie",
				slog.String("error", err.Error()),
			)
			g.sessionManager.ClearSessionCookie(w)
			return nil, service.ErrNoSession
		}

		session = refreshed
		g.events.Publish(service.SessionEvent{
			Event:     service.EventTokenRefreshed,
			UserID:    session.UserID,
			Email:     session.Email,
			ExpiresAt: session.ExpiresAtTime(),
		})
		g.logger.Debug("Сессия обновлена через refresh token",
			slog.String("user_id", session.UserID),
		)
	}

	// 4. Проверяем access token
	if _, err := g.verifier.Verify(r.Context(), session.AccessToken); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			g.logger.Info("Access token отклонён",
				slog.String("user_id", session.UserID),
			)
			g.sessionManager.ClearSessionCookie(w)
			return nil, service.ErrNoSession
		}
		// Backend недоступен: сессию не сбрасываем
		g.logger.Warn("Проверка access token не выполнена",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return nil, errBackendUnavailable
	}

	return session, nil
}

// SessionFromContext извлекает SessionData из контекста запроса.
// Возвращает nil, если запрос не прошёл через Gate.
func SessionFromContext(ctx context.Context) *auth.SessionData {
	session, ok := ctx.Value(ContextKeySession).(*auth.SessionData)
	if !ok {
		return nil
	}
	return session
}

// WithSession помещает сессию в контекст и отмечает пользователя
// в журнале запроса.
func WithSession(ctx context.Context, session *auth.SessionData) context.Context {
	apimw.NoteUser(ctx, session.UserID)
	return context.WithValue(ctx, ContextKeySession, session)
}
