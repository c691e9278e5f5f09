// Пакет service — бизнес-логика Pocket Share: листинг bucket, staging
// и последовательная загрузка файлов, параллельное скачивание, выбор
// файлов и рассылка событий сессии.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Ошибки сервисного слоя.
var (
	// ErrNoSession — операция требует сессию пользователя.
	ErrNoSession = errors.New("нет активной сессии")
	// ErrNotFound — staged-файл, архив или набор не найден.
	ErrNotFound = errors.New("не найдено")
	// ErrTooLarge — файл превышает допустимый размер.
	ErrTooLarge = errors.New("файл превышает допустимый размер")
)

// ListError — ошибка получения листинга bucket.
type ListError struct {
	Message string
}

func (e *ListError) Error() string {
	return "листинг: " + e.Message
}

// UploadError — итог неудачной загрузки пакета файлов.
type UploadError struct {
	// StatusCode — статус, извлечённый из ответа backend (500 по умолчанию)
	StatusCode int
	// Message — сообщение backend или "Internal error"
	Message string
	// File — имя файла, на котором пакет остановился
	File string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("загрузка %s: %d %s", e.File, e.StatusCode, e.Message)
}

// DownloadError — ошибка скачивания одного файла.
type DownloadError struct {
	Name   string
	Reason string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("скачивание %s: %s", e.Name, e.Reason)
}

// jsonInError — первый JSON-объект в тексте ошибки.
var jsonInError = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractUploadError извлекает {statusCode, error} из JSON, встроенного
// в текст ошибки загрузки. Если JSON нет или он не разбирается,
// возвращается обобщённая ошибка 500 "Internal error".
func ExtractUploadError(err error) *UploadError {
	generic := &UploadError{StatusCode: http.StatusInternalServerError, Message: "Internal error"}
	if err == nil {
		return generic
	}

	match := jsonInError.FindString(err.Error())
	if match == "" {
		return generic
	}

	var body struct {
		StatusCode json.RawMessage `json:"statusCode"`
		Error      string          `json:"error"`
		Message    string          `json:"message"`
	}
	if jerr := json.Unmarshal([]byte(match), &body); jerr != nil {
		return generic
	}

	out := &UploadError{StatusCode: http.StatusInternalServerError, Message: body.Error}
	if n, perr := strconv.Atoi(strings.Trim(string(body.StatusCode), `"`)); perr == nil && n > 0 {
		out.StatusCode = n
	}
	if out.Message == "" {
		out.Message = body.Message
	}
	if out.Message == "" {
		out.Message = generic.Message
	}
	return out
}
