// Пакет server — HTTP-сервер Pocket Share с graceful shutdown.
// Страницы, JSON API, SSE-поток событий сессии, health и метрики
// на одном chi-роутере.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/pocketshare/internal/api/generated"
	apihandlers "github.com/bigkaa/pocketshare/internal/api/handlers"
	"github.com/bigkaa/pocketshare/internal/api/middleware"
	"github.com/bigkaa/pocketshare/internal/config"
	uihandlers "github.com/bigkaa/pocketshare/internal/ui/handlers"
	"github.com/bigkaa/pocketshare/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/pocketshare/internal/ui/middleware"
	"github.com/bigkaa/pocketshare/internal/ui/static"
)

// Components — обработчики и middleware, монтируемые на роутер.
type Components struct {
	API       generated.ServerInterface
	Validator *middleware.OpenAPIValidator
	Health    *apihandlers.HealthHandler
	Gate      *uimiddleware.Gate
	Auth      *uihandlers.AuthHandler
	Pages     *uihandlers.PagesHandler
	Events    *uihandlers.EventsHandler
}

// Server — HTTP-сервер Pocket Share.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, c Components) *Server {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     NewRouter(logger, c),
		ReadTimeout: 30 * time.Second,
		// WriteTimeout не задан: SSE-поток и скачивание архивов длительные
		IdleTimeout: 120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты приложения.
func NewRouter(logger *slog.Logger, c Components) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.EscapedRoutePath())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и метрики без сессии
	router.Get("/health/live", c.Health.HealthLive)
	router.Get("/health/ready", c.Health.HealthReady)
	router.Get("/metrics", c.Health.GetMetrics)

	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	// Страницы: язык из cookie или Accept-Language
	router.Group(func(r chi.Router) {
		r.Use(i18n.Middleware())

		r.Get(uimiddleware.LoginPath, c.Auth.HandleLoginPage)
		r.Post(uimiddleware.LoginPath, c.Auth.HandleLogin)
		r.Post("/logout", c.Auth.HandleLogout)
		r.Post("/set-language", uihandlers.HandleSetLanguage)

		r.Group(func(r chi.Router) {
			r.Use(c.Gate.Pages())
			r.Get("/", c.Pages.HandleHome)
			r.Get("/download", c.Pages.HandleDownload)
			r.Get("/upload", c.Pages.HandleUpload)
			r.Get("/events/auth", c.Events.HandleAuthEvents)
		})
	})

	// JSON API: сессия обязательна, запросы валидируются по OpenAPI
	router.Group(func(r chi.Router) {
		r.Use(c.Gate.API())

		opts := generated.ChiServerOptions{
			BaseRouter:       r,
			ErrorHandlerFunc: apihandlers.ParamErrorHandler,
		}
		if c.Validator != nil {
			opts.Middlewares = []generated.MiddlewareFunc{c.Validator.Middleware()}
		}
		generated.HandlerWithOptions(c.API, opts)
	})

	return router
}

// OnShutdown регистрирует функцию, вызываемую в начале graceful shutdown.
// Используется для закрытия длительных SSE-потоков.
func (s *Server) OnShutdown(f func()) {
	s.httpServer.RegisterOnShutdown(f)
}

// Run запускает HTTP-сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняет graceful shutdown с таймаутом из конфигурации.
func (s *Server) Run() error {
	// Канал для ошибок запуска сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка запуска HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	s.logger.Info("Выполняется graceful shutdown...",
		slog.Duration("timeout", s.cfg.ShutdownTimeout),
	)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
