// Пакет auth — сессии пользователей Pocket Share и проверка access token.
// Сессия хранится в cookie, зашифрованном AES-256-GCM.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/pocketshare/internal/supabase"
)

// SessionCookieName — имя cookie зашифрованной сессии.
const SessionCookieName = "pocketshare_session"

// SessionCookieMaxAge — максимальный возраст cookie сессии (7 дней, как refresh token backend).
const SessionCookieMaxAge = 7 * 24 * 60 * 60

// refreshMargin — запас до истечения access token, при котором сессия обновляется.
const refreshMargin = 30 * time.Second

// SessionData — данные сессии в зашифрованном cookie.
type SessionData struct {
	// ID — идентификатор сессии, ключ staging и выбора файлов
	ID string `json:"id"`
	// AccessToken — access token backend
	AccessToken string `json:"access_token"` //nolint:gosec // G117: содержимое зашифрованного cookie
	// RefreshToken — refresh token backend
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: содержимое зашифрованного cookie
	// ExpiresAt — время истечения access token (Unix timestamp)
	ExpiresAt int64 `json:"expires_at"`
	// UserID — идентификатор пользователя backend
	UserID string `json:"user_id"`
	// Email — email пользователя
	Email string `json:"email"`
}

// NewSessionData создаёт данные новой сессии из ответа backend.
func NewSessionData(s *supabase.Session) *SessionData {
	return &SessionData{
		ID:           uuid.NewString(),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.Expiry().Unix(),
		UserID:       s.User.ID,
		Email:        s.User.Email,
	}
}

// Refreshed возвращает копию сессии с токенами из обновлённой сессии backend.
// Идентификатор сессии сохраняется.
func (s *SessionData) Refreshed(fresh *supabase.Session) *SessionData {
	out := *s
	out.AccessToken = fresh.AccessToken
	out.RefreshToken = fresh.RefreshToken
	out.ExpiresAt = fresh.Expiry().Unix()
	if fresh.User.ID != "" {
		out.UserID = fresh.User.ID
		out.Email = fresh.User.Email
	}
	return &out
}

// IsExpired сообщает, что до истечения access token осталось меньше refreshMargin.
func (s *SessionData) IsExpired() bool {
	return time.Now().Add(refreshMargin).Unix() >= s.ExpiresAt
}

// ExpiresAtTime возвращает время истечения access token.
func (s *SessionData) ExpiresAtTime() time.Time {
	return time.Unix(s.ExpiresAt, 0).UTC()
}

// SessionManager — шифрование сессии в cookie через AES-256-GCM.
type SessionManager struct {
	gcm    cipher.AEAD
	secure bool
}

// NewSessionManager создаёт менеджер сессий.
// key — base64-ключ из 32 байт или произвольная строка (хешируется SHA-256).
// Пустой key — случайный ключ, сессии не переживают перезапуск.
func NewSessionManager(key string, secure bool) (*SessionManager, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			sum := sha256.Sum256([]byte(key))
			keyBytes = sum[:]
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &SessionManager{gcm: gcm, secure: secure}, nil
}

// Encrypt шифрует SessionData в base64-строку (nonce перед шифртекстом).
func (sm *SessionManager) Encrypt(data *SessionData) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	nonce := make([]byte, sm.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	ciphertext := sm.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt расшифровывает строку, полученную Encrypt.
func (sm *SessionManager) Decrypt(encrypted string) (*SessionData, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := sm.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := sm.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка дешифрования сессии: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("ошибка десериализации сессии: %w", err)
	}
	if data.ID == "" || data.AccessToken == "" {
		return nil, errors.New("неполные данные сессии")
	}
	return &data, nil
}

// SetSessionCookie записывает зашифрованную сессию в cookie ответа.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *SessionData) error {
	encrypted, err := sm.Encrypt(data)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encrypted,
		Path:     "/",
		MaxAge:   SessionCookieMaxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// GetSessionFromRequest читает сессию из cookie запроса.
// Возвращает nil, nil, если cookie нет.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	return sm.Decrypt(cookie.Value)
}

// ClearSessionCookie удаляет cookie сессии.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
