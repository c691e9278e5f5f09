// Пакет errors — ответы API Pocket Share: конверт ошибок
// {"error": {"code": "...", "message": "..."}} и результаты действий {ok, error?}.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, statusCode, errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// WriteJSON записывает v как JSON с указанным статусом.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// ActionResult — результат действия пользователя (загрузка, скачивание).
type ActionResult struct {
	OK    bool         `json:"ok"`
	Error *ActionError `json:"error,omitempty"`
}

// ActionError — ошибка действия, показываемая пользователю.
type ActionError struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
}

// ActionOK — успешный результат действия.
func ActionOK(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, ActionResult{OK: true})
}

// ActionFailed — неуспешный результат действия. HTTP-статус ответа 200:
// сбой действия не является ошибкой протокола.
func ActionFailed(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, http.StatusOK, ActionResult{
		Error: &ActionError{StatusCode: statusCode, Message: message},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// PayloadTooLarge — 413 файл превышает допустимый размер.
func PayloadTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message)
}

// BackendUnavailable — 502 backend недоступен.
func BackendUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeBackendUnavailable, message)
}

// RateLimited — 429 превышен лимит запросов.
func RateLimited(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
