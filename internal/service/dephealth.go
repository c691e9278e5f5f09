// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Pocket Share мониторит:
//   - Storage API backend — HTTP checker к /storage/v1/status (critical)
//   - PostgreSQL — SQL checker через pgxpool, только для хранилища
//     отпечатков postgres (не critical: без него теряется лишь продолжение загрузок)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// storageHealthPath — health endpoint Storage API, доступный без ключа.
const storageHealthPath = "/storage/v1/status"

// storageDependency — имя критичной зависимости Storage API.
const storageDependency = "supabase-storage"

// DephealthOptions — параметры мониторинга зависимостей.
type DephealthOptions struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (PS_DEPHEALTH_GROUP)
	Group string
	// BackendURL — базовый URL backend
	BackendURL string
	// DB — *sql.DB из pgxpool (nil — PostgreSQL не мониторится)
	DB *sql.DB
	// PgConnURL — URL PostgreSQL для лейблов (не для подключения)
	PgConnURL string
	// CheckInterval — интервал проверки (PS_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(opts DephealthOptions, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(opts, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	opts DephealthOptions,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(opts, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(opts DephealthOptions, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	storageDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(opts.BackendURL),
		dephealth.WithHTTPHealthPath(storageHealthPath),
		dephealth.CheckInterval(opts.CheckInterval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(opts.BackendURL); err == nil && parsed.Scheme == "https" {
		storageDepOpts = append(storageDepOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	dhOpts := make([]dephealth.Option, 0, 3+len(extraOpts))
	dhOpts = append(dhOpts,
		dephealth.WithLogger(logger),
		dephealth.HTTP(storageDependency, storageDepOpts...),
	)

	if opts.DB != nil {
		dhOpts = append(dhOpts,
			dephealth.AddDependency("postgresql", dephealth.TypePostgres,
				pgcheck.New(pgcheck.WithDB(opts.DB)),
				dephealth.FromURL(opts.PgConnURL),
				dephealth.CheckInterval(opts.CheckInterval),
				dephealth.Critical(false),
			),
		)
	}
	dhOpts = append(dhOpts, extraOpts...)

	dh, err := dephealth.New(opts.ServiceID, opts.Group, dhOpts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// CheckReady возвращает статус readiness по последним проверкам:
// "fail" — недоступен Storage API, "degraded" — недоступны только
// некритичные зависимости или проверки ещё не выполнялись.
func (ds *DephealthService) CheckReady() (status string, message string) {
	health := ds.Health()
	if len(health) == 0 {
		return "degraded", "проверки зависимостей ещё не выполнялись"
	}

	var down []string
	critical := false
	for name, ok := range health {
		if ok {
			continue
		}
		down = append(down, name)
		if strings.HasPrefix(name, storageDependency) {
			critical = true
		}
	}
	if len(down) == 0 {
		return "ok", "зависимости доступны"
	}

	slices.Sort(down)
	message = "недоступны: " + strings.Join(down, ", ")
	if critical {
		return "fail", message
	}
	return "degraded", message
}
