package generated

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Текущая сессия
	// (GET /api/v1/session)
	GetSession(w http.ResponseWriter, r *http.Request)
	// Список файлов контейнера
	// (GET /api/v1/files)
	ListFiles(w http.ResponseWriter, r *http.Request)
	// Скачивание одного файла
	// (GET /api/v1/files/{name}/download)
	DownloadFile(w http.ResponseWriter, r *http.Request, name ObjectName)
	// Скачивание выбранных файлов одним архивом
	// (POST /api/v1/downloads)
	CreateBulkDownload(w http.ResponseWriter, r *http.Request)
	// ZIP-архив скачанных файлов
	// (GET /api/v1/downloads/{bundleId})
	GetBulkDownload(w http.ResponseWriter, r *http.Request, bundleId BundleId)
	// Выбранные файлы сессии
	// (GET /api/v1/selection)
	GetSelection(w http.ResponseWriter, r *http.Request)
	// Сброс выбора
	// (DELETE /api/v1/selection)
	ClearSelection(w http.ResponseWriter, r *http.Request)
	// Переключение выбора одного файла
	// (POST /api/v1/selection/toggle)
	ToggleSelection(w http.ResponseWriter, r *http.Request)
	// Выбрать все или сбросить выбор
	// (POST /api/v1/selection/toggle-all)
	ToggleAllSelection(w http.ResponseWriter, r *http.Request)
	// Файлы, подготовленные к загрузке
	// (GET /api/v1/uploads/staged)
	ListStaged(w http.ResponseWriter, r *http.Request)
	// Добавление файлов к загрузке
	// (POST /api/v1/uploads/staged)
	StageFiles(w http.ResponseWriter, r *http.Request)
	// Удаление подготовленного файла
	// (DELETE /api/v1/uploads/staged/{id})
	RemoveStaged(w http.ResponseWriter, r *http.Request, id StagedId)
	// Превью подготовленного изображения
	// (GET /api/v1/uploads/staged/{id}/preview)
	PreviewStaged(w http.ResponseWriter, r *http.Request, id StagedId)
	// Загрузка подготовленных файлов в контейнер
	// (POST /api/v1/uploads)
	UploadStaged(w http.ResponseWriter, r *http.Request)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

// MiddlewareFunc — middleware отдельных операций.
type MiddlewareFunc func(http.Handler) http.Handler

func (siw *ServerInterfaceWrapper) wrap(handler http.Handler) http.Handler {
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	return handler
}

// GetSession operation middleware
func (siw *ServerInterfaceWrapper) GetSession(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.GetSession)).ServeHTTP(w, r)
}

// ListFiles operation middleware
func (siw *ServerInterfaceWrapper) ListFiles(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.ListFiles)).ServeHTTP(w, r)
}

// DownloadFile operation middleware
func (siw *ServerInterfaceWrapper) DownloadFile(w http.ResponseWriter, r *http.Request) {
	var err error

	// ------------- Path parameter "name" -------------
	var name ObjectName

	err = runtime.BindStyledParameterWithOptions("simple", "name", chi.URLParam(r, "name"), &name,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "name", Err: err})
		return
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.DownloadFile(w, r, name)
	})
	siw.wrap(handler).ServeHTTP(w, r)
}

// CreateBulkDownload operation middleware
func (siw *ServerInterfaceWrapper) CreateBulkDownload(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.CreateBulkDownload)).ServeHTTP(w, r)
}

// GetBulkDownload operation middleware
func (siw *ServerInterfaceWrapper) GetBulkDownload(w http.ResponseWriter, r *http.Request) {
	var err error

	// ------------- Path parameter "bundleId" -------------
	var bundleId BundleId

	err = runtime.BindStyledParameterWithOptions("simple", "bundleId", chi.URLParam(r, "bundleId"), &bundleId,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "bundleId", Err: err})
		return
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetBulkDownload(w, r, bundleId)
	})
	siw.wrap(handler).ServeHTTP(w, r)
}

// GetSelection operation middleware
func (siw *ServerInterfaceWrapper) GetSelection(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.GetSelection)).ServeHTTP(w, r)
}

// ClearSelection operation middleware
func (siw *ServerInterfaceWrapper) ClearSelection(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.ClearSelection)).ServeHTTP(w, r)
}

// ToggleSelection operation middleware
func (siw *ServerInterfaceWrapper) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.ToggleSelection)).ServeHTTP(w, r)
}

// ToggleAllSelection operation middleware
func (siw *ServerInterfaceWrapper) ToggleAllSelection(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.ToggleAllSelection)).ServeHTTP(w, r)
}

// ListStaged operation middleware
func (siw *ServerInterfaceWrapper) ListStaged(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.ListStaged)).ServeHTTP(w, r)
}

// StageFiles operation middleware
func (siw *ServerInterfaceWrapper) StageFiles(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.StageFiles)).ServeHTTP(w, r)
}

// RemoveStaged operation middleware
func (siw *ServerInterfaceWrapper) RemoveStaged(w http.ResponseWriter, r *http.Request) {
	siw.stagedID(w, r, siw.Handler.RemoveStaged)
}

// PreviewStaged operation middleware
func (siw *ServerInterfaceWrapper) PreviewStaged(w http.ResponseWriter, r *http.Request) {
	siw.stagedID(w, r, siw.Handler.PreviewStaged)
}

func (siw *ServerInterfaceWrapper) stagedID(w http.ResponseWriter, r *http.Request,
	next func(http.ResponseWriter, *http.Request, StagedId)) {
	var err error

	// ------------- Path parameter "id" -------------
	var id StagedId

	err = runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next(w, r, id)
	})
	siw.wrap(handler).ServeHTTP(w, r)
}

// UploadStaged operation middleware
func (siw *ServerInterfaceWrapper) UploadStaged(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.UploadStaged)).ServeHTTP(w, r)
}

// InvalidParamFormatError — параметр запроса не прошёл привязку.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ChiServerOptions — параметры регистрации маршрутов.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux creates http.Handler with routing matching OpenAPI spec based on the provided mux.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{
		BaseRouter: r,
	})
}

// HandlerWithOptions creates http.Handler with additional options.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/session", wrapper.GetSession)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/files", wrapper.ListFiles)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/files/{name}/download", wrapper.DownloadFile)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/downloads", wrapper.CreateBulkDownload)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/downloads/{bundleId}", wrapper.GetBulkDownload)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/selection", wrapper.GetSelection)
	})
	r.Group(func(r chi.Router) {
		r.Delete(options.BaseURL+"/api/v1/selection", wrapper.ClearSelection)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/selection/toggle", wrapper.ToggleSelection)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/selection/toggle-all", wrapper.ToggleAllSelection)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/uploads/staged", wrapper.ListStaged)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/uploads/staged", wrapper.StageFiles)
	})
	r.Group(func(r chi.Router) {
		r.Delete(options.BaseURL+"/api/v1/uploads/staged/{id}", wrapper.RemoveStaged)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/uploads/staged/{id}/preview", wrapper.PreviewStaged)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/uploads", wrapper.UploadStaged)
	})

	return r
}
