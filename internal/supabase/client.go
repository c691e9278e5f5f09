// Пакет supabase — HTTP-клиент backend: аутентификация (GoTrue)
// и Storage API. Каждый запрос несёт заголовок apikey с анонимным ключом.
package supabase

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// APIError — структурированная ошибка backend.
type APIError struct {
	// StatusCode — HTTP-статус ответа
	StatusCode int
	// Code — машиночитаемый код ошибки backend (invalid_credentials, not_found, ...)
	Code string
	// Message — человекочитаемое сообщение backend
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend: %d: %s", e.StatusCode, e.Message)
}

// IsAuth сообщает, что backend отверг авторизацию запроса.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// errorBody — объединение форматов ошибок GoTrue и Storage API.
type errorBody struct {
	// Storage API: {"statusCode":"404","error":"not_found","message":"..."}
	StatusCode json.RawMessage `json:"statusCode"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	// GoTrue: {"code":400,"error_code":"...","msg":"..."} или
	// {"error":"invalid_grant","error_description":"..."}
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

// ParseError строит APIError из ответа backend с неуспешным статусом.
func ParseError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	if code := parseStatusCode(eb.StatusCode); code != 0 {
		apiErr.StatusCode = code
	}
	apiErr.Code = firstNonEmpty(eb.ErrorCode, eb.Error)
	apiErr.Message = firstNonEmpty(eb.Msg, eb.ErrorDescription, eb.Message, eb.Error, http.StatusText(status))
	return apiErr
}

// parseStatusCode разбирает statusCode, который Storage API отдаёт строкой.
func parseStatusCode(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	s := strings.Trim(string(raw), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Client — HTTP-клиент backend.
type Client struct {
	httpClient     *http.Client
	transferClient *http.Client
	baseURL        string
	anonKey        string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	logger         *slog.Logger
}

// New создаёт клиент backend.
// baseURL — базовый URL (например, https://xyz.supabase.co).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут коротких API-запросов; передача файлов таймаутом не
// ограничивается и управляется контекстом.
func New(baseURL, anonKey, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата backend: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат backend добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout, Transport: transport},
		transferClient: &http.Client{Transport: transport},
		baseURL:        strings.TrimRight(baseURL, "/"),
		anonKey:        anonKey,
		logger:         logger.With(slog.String("component", "supabase_client")),
	}, nil
}

// BaseURL возвращает базовый URL backend.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AnonKey возвращает анонимный API-ключ.
func (c *Client) AnonKey() string {
	return c.anonKey
}

// HTTPClient возвращает HTTP-клиент коротких API-запросов (с таймаутом).
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// TransferClient возвращает HTTP-клиент для передачи содержимого файлов.
func (c *Client) TransferClient() *http.Client {
	return c.transferClient
}

// doJSON выполняет запрос к backend с JSON-телом и декодирует JSON-ответ в out.
// out может быть nil, тогда тело ответа отбрасывается.
func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("кодирование запроса %s: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("создание запроса %s: %w", path, err)
	}
	req.Header.Set("apikey", c.anonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("запрос %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := ParseError(resp.StatusCode, data)
		c.logger.Debug("Backend вернул ошибку",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", apiErr.StatusCode),
			slog.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("декодирование ответа %s: %w", path, err)
	}
	return nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("CA-сертификат %s не содержит PEM-блоков", caCertPath)
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
