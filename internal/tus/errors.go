package tus

import (
	"fmt"
	"io"
	"net/http"
)

// Error — ошибка запроса к серверу загрузок.
// StatusCode равен 0 для транспортных ошибок.
type Error struct {
	// Op — операция протокола: create, head, patch
	Op string
	// StatusCode — HTTP-статус ответа
	StatusCode int
	// Body — тело ответа сервера (первые 64 КиБ)
	Body []byte
	// Err — исходная ошибка
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("tus: %s: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("tus: %s: статус %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("tus: %s: неожиданный статус %d, response text: %s", e.Op, e.StatusCode, e.Body)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary сообщает, что ошибка временная и попытку можно повторить:
// транспортные ошибки, 5xx, 409 (рассинхронизация смещения) и 423 (загрузка заблокирована).
func (e *Error) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusConflict, e.StatusCode == http.StatusLocked:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

func newStatusError(op string, resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return &Error{Op: op, StatusCode: resp.StatusCode, Body: body}
}
