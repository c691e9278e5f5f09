// logging.go — журнал HTTP-запросов Pocket Share через slog.
// Кроме статуса и длительности пишет шаблон маршрута и пользователя
// сессии, если запрос прошёл проверку сессии.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// statusRecorder перехватывает статус-код и размер ответа.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController (Flush для SSE).
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestNote — сведения, которые внутренние обработчики добавляют
// в запись журнала. Контекст неизменяем, поэтому RequestLogger кладёт
// в него указатель, а проверка сессии заполняет его.
type requestNote struct {
	userID string
}

type requestNoteKey struct{}

// NoteUser отмечает пользователя сессии в записи журнала запроса.
// Вне RequestLogger ничего не делает.
func NoteUser(ctx context.Context, userID string) {
	if note, ok := ctx.Value(requestNoteKey{}).(*requestNote); ok {
		note.userID = userID
	}
}

// quietPath — служебные пути (пробы, метрики, статика): успешные
// запросы к ним пишутся на DEBUG, чтобы не засорять журнал.
func quietPath(path string) bool {
	return strings.HasPrefix(path, "/health/") ||
		path == "/metrics" ||
		strings.HasPrefix(path, "/static/")
}

// RequestLogger возвращает middleware журнала запросов.
// Уровень: ERROR для 5xx, WARN для 4xx, DEBUG для успешных служебных
// запросов, иначе INFO.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			note := &requestNote{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestNoteKey{}, note)))

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			case quietPath(r.URL.Path):
				level = slog.LevelDebug
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.EscapedPath()),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if pattern := routePattern(r); pattern != unmatchedRoute {
				attrs = append(attrs, slog.String("route", pattern))
			}
			if note.userID != "" {
				attrs = append(attrs, slog.String("user_id", note.userID))
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
