// validator.go — проверка запросов к API по OpenAPI-контракту (kin-openapi).
// Маршрут операции определяется шаблоном chi, поэтому middleware
// подключается к операциям (после маршрутизации), а не к роутеру целиком.
package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/pocketshare/internal/api/errors"
)

// OpenAPIValidator — middleware проверки параметров и JSON-тел запросов.
type OpenAPIValidator struct {
	spec   *openapi3.T
	logger *slog.Logger
}

// NewOpenAPIValidator создаёт middleware по разобранному документу.
func NewOpenAPIValidator(spec *openapi3.T, logger *slog.Logger) *OpenAPIValidator {
	return &OpenAPIValidator{
		spec:   spec,
		logger: logger.With(slog.String("component", "openapi_validator")),
	}
}

// Middleware возвращает HTTP middleware. Операции, отсутствующие
// в документе, пропускаются без проверки.
func (v *OpenAPIValidator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams := v.route(r)
			if route == nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
					// Файлы multipart не буферизуются в памяти для проверки
					ExcludeRequestBody: isMultipart(r),
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				v.logger.Debug("Запрос не соответствует контракту",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ValidationError(w, err.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// route находит операцию документа по шаблону маршрута chi.
func (v *OpenAPIValidator) route(r *http.Request) (*routers.Route, map[string]string) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil, nil
	}
	pattern := rctx.RoutePattern()
	if pattern == "" {
		return nil, nil
	}

	pathItem := v.spec.Paths.Find(pattern)
	if pathItem == nil {
		return nil, nil
	}
	op := pathItem.GetOperation(r.Method)
	if op == nil {
		return nil, nil
	}

	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" {
			continue
		}
		// Маршрут сопоставлен по экранированному пути
		value := rctx.URLParams.Values[i]
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		params[key] = value
	}

	return &routers.Route{
		Spec:      v.spec,
		Path:      pattern,
		PathItem:  pathItem,
		Method:    r.Method,
		Operation: op,
	}, params
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
