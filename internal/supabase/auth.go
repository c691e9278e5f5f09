package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// User — пользователь backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session — сессия, выданная backend при входе или обновлении.
type Session struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: JSON-маппинг ответа GoTrue
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: JSON-маппинг ответа GoTrue
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// Expiry возвращает момент истечения access token.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
}

// ErrEmptyToken — backend вернул сессию без access token.
var ErrEmptyToken = errors.New("пустой access_token в ответе backend")

// SignInWithPassword выполняет вход по email и паролю.
// POST /auth/v1/token?grant_type=password
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	var sess Session
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &sess); err != nil {
		return nil, fmt.Errorf("вход по паролю: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, ErrEmptyToken
	}
	return &sess, nil
}

// RefreshSession обновляет сессию по refresh token.
// POST /auth/v1/token?grant_type=refresh_token
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var sess Session
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &sess); err != nil {
		return nil, fmt.Errorf("обновление сессии: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, ErrEmptyToken
	}
	return &sess, nil
}

// GetUser возвращает пользователя по access token. Backend проверяет
// подпись и срок действия токена.
// GET /auth/v1/user
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &u); err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return &u, nil
}

// SignOut завершает сессию на стороне backend.
// POST /auth/v1/logout
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("выход: %w", err)
	}
	return nil
}
