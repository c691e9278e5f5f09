package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/pocketshare/internal/supabase"
)

const testKeyID = "test-key-1"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func newTestJWKSVerifier(t *testing.T, key *rsa.PrivateKey) *JWKSVerifier {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWKSVerifierWithKeyfunc(kf, testLogger())
}

// generateAccessToken генерирует access token backend.
func generateAccessToken(t *testing.T, key *rsa.PrivateKey, sub, aud string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"aud":   aud,
		"email": "user@example.com",
		"role":  "authenticated",
		"exp":   jwt.NewNumericDate(exp),
		"iat":   jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJWKSVerifier_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	v := newTestJWKSVerifier(t, key)

	id, err := v.Verify(context.Background(),
		generateAccessToken(t, key, "user-1", "authenticated", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "user-1" || id.Email != "user@example.com" {
		t.Errorf("неверный пользователь: %+v", id)
	}
}

func TestJWKSVerifier_Rejects(t *testing.T) {
	key := generateTestKey(t)
	other := generateTestKey(t)
	v := newTestJWKSVerifier(t, key)

	tests := []struct {
		name  string
		token string
	}{
		{"истёкший", generateAccessToken(t, key, "u", "authenticated", time.Now().Add(-time.Hour))},
		{"чужой audience", generateAccessToken(t, key, "u", "anon", time.Now().Add(time.Hour))},
		{"чужой ключ", generateAccessToken(t, other, "u", "authenticated", time.Now().Add(time.Hour))},
		{"без subject", generateAccessToken(t, key, "", "authenticated", time.Now().Add(time.Hour))},
		{"мусор", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("want ErrInvalidToken, got %v", err)
			}
		})
	}
}

type fakeUsers struct {
	calls atomic.Int32
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, token string) (*supabase.User, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &supabase.User{ID: "id-" + token, Email: token + "@example.com"}, nil
}

func TestBackendVerifier_Cache(t *testing.T) {
	users := &fakeUsers{}
	v := NewBackendVerifier(users, time.Minute, testLogger())

	for range 3 {
		id, err := v.Verify(context.Background(), "tok")
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if id.UserID != "id-tok" {
			t.Errorf("UserID = %q", id.UserID)
		}
	}
	if n := users.calls.Load(); n != 1 {
		t.Errorf("запросов к backend %d, ожидается 1", n)
	}

	v.Forget("tok")
	_, _ = v.Verify(context.Background(), "tok")
	if n := users.calls.Load(); n != 2 {
		t.Errorf("после Forget ожидается повторный запрос, запросов %d", n)
	}
}

func TestBackendVerifier_NoCache(t *testing.T) {
	users := &fakeUsers{}
	v := NewBackendVerifier(users, 0, testLogger())
	_, _ = v.Verify(context.Background(), "tok")
	_, _ = v.Verify(context.Background(), "tok")
	if n := users.calls.Load(); n != 2 {
		t.Errorf("без кэша ожидается 2 запроса, получено %d", n)
	}
}

func TestBackendVerifier_Errors(t *testing.T) {
	unauthorized := &fakeUsers{err: &supabase.APIError{StatusCode: 401, Message: "invalid JWT"}}
	v := NewBackendVerifier(unauthorized, time.Minute, testLogger())
	if _, err := v.Verify(context.Background(), "tok"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("401: want ErrInvalidToken, got %v", err)
	}

	down := &fakeUsers{err: errors.New("connection refused")}
	v = NewBackendVerifier(down, time.Minute, testLogger())
	_, err := v.Verify(context.Background(), "tok")
	if err == nil || errors.Is(err, ErrInvalidToken) {
		t.Errorf("сетевая ошибка не должна быть ErrInvalidToken: %v", err)
	}
}
