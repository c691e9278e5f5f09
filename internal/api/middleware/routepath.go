// routepath.go — сопоставление маршрутов chi по экранированному пути.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// EscapedRoutePath возвращает middleware, направляющий маршрутизацию chi
// по экранированному пути запроса. Параметры пути ({name}) остаются
// экранированными: "/" и "%" в имени объекта не ломают сопоставление,
// а декодирует их один раз привязка параметров.
func EscapedRoutePath() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath == "" {
				rctx.RoutePath = r.URL.EscapedPath()
			}
			next.ServeHTTP(w, r)
		})
	}
}
