package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/pocketshare/internal/supabase"
)

// Prometheus-метрики проверки токенов.
var (
	tokenChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_token_checks_total",
		Help: "Общее количество проверок access token (по способу и результату).",
	}, []string{"method", "result"})

	userCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_user_cache_hits_total",
		Help: "Общее количество попаданий в кэш get-current-user.",
	})
	userCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_user_cache_misses_total",
		Help: "Общее количество промахов кэша get-current-user.",
	})
)

// ErrInvalidToken — access token не прошёл проверку.
var ErrInvalidToken = errors.New("невалидный или просроченный токен")

// Identity — пользователь, подтверждённый access token.
type Identity struct {
	UserID string
	Email  string
}

// TokenVerifier — проверка access token.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (*Identity, error)
}

// supabaseClaims — claims access token backend.
type supabaseClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// JWKSVerifier — локальная проверка подписи access token по JWKS backend.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	logger *slog.Logger
}

// NewJWKSVerifier создаёт проверку по JWKS с фоновым обновлением ключей.
// Старт не блокируется, если JWKS ещё недоступен.
func NewJWKSVerifier(
	jwksURL string,
	httpClient *http.Client,
	refreshInterval time.Duration,
	logger *slog.Logger,
) (*JWKSVerifier, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewJWKSVerifierWithKeyfunc(k, logger), nil
}

// NewJWKSVerifierWithKeyfunc создаёт проверку с готовым keyfunc.
// Используется в тестах.
func NewJWKSVerifierWithKeyfunc(k keyfunc.Keyfunc, logger *slog.Logger) *JWKSVerifier {
	return &JWKSVerifier{
		jwks:   k,
		logger: logger.With(slog.String("component", "jwks_verifier")),
	}
}

// Verify проверяет подпись, срок действия и audience "authenticated".
func (v *JWKSVerifier) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	claims := &supabaseClaims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, v.jwks.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience("authenticated"),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil || !token.Valid {
		tokenChecksTotal.WithLabelValues("jwks", "invalid").Inc()
		if err != nil {
			v.logger.Debug("JWT валидация не пройдена",
				slog.String("error", err.Error()),
			)
		}
		return nil, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		tokenChecksTotal.WithLabelValues("jwks", "invalid").Inc()
		return nil, ErrInvalidToken
	}
	tokenChecksTotal.WithLabelValues("jwks", "ok").Inc()
	return &Identity{UserID: sub, Email: claims.Email}, nil
}

// UserFetcher — запрос пользователя по access token.
type UserFetcher interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// BackendVerifier — проверка access token запросом get-current-user
// с кратковременным кэшем результата.
type BackendVerifier struct {
	users  UserFetcher
	cache  *expirable.LRU[string, *Identity]
	logger *slog.Logger
}

// maxCachedUsers — максимальное число токенов в кэше.
const maxCachedUsers = 10000

// NewBackendVerifier создаёт проверку через backend. ttl — время жизни
// записи кэша (0 — без кэша).
func NewBackendVerifier(users UserFetcher, ttl time.Duration, logger *slog.Logger) *BackendVerifier {
	v := &BackendVerifier{
		users:  users,
		logger: logger.With(slog.String("component", "backend_verifier")),
	}
	if ttl > 0 {
		v.cache = expirable.NewLRU[string, *Identity](maxCachedUsers, nil, ttl)
	}
	return v
}

// Verify возвращает пользователя по access token.
// Ответ backend 401/403 превращается в ErrInvalidToken.
func (v *BackendVerifier) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	if v.cache != nil {
		if id, ok := v.cache.Get(accessToken); ok {
			userCacheHitsTotal.Inc()
			return id, nil
		}
		userCacheMissesTotal.Inc()
	}

	user, err := v.users.GetUser(ctx, accessToken)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.IsAuth() {
			tokenChecksTotal.WithLabelValues("backend", "invalid").Inc()
			return nil, ErrInvalidToken
		}
		tokenChecksTotal.WithLabelValues("backend", "error").Inc()
		return nil, fmt.Errorf("проверка токена: %w", err)
	}

	id := &Identity{UserID: user.ID, Email: user.Email}
	if v.cache != nil {
		v.cache.Add(accessToken, id)
	}
	tokenChecksTotal.WithLabelValues("backend", "ok").Inc()
	return id, nil
}

// Forget удаляет токен из кэша (выход пользователя).
func (v *BackendVerifier) Forget(accessToken string) {
	if v.cache != nil {
		v.cache.Remove(accessToken)
	}
}
