// Pocket Share — обмен файлами через bucket Supabase-совместимого backend.
// Веб-интерфейс (вход, скачивание, загрузка) и CLI для тех же операций.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/pocketshare/internal/api/generated"
	apihandlers "github.com/bigkaa/pocketshare/internal/api/handlers"
	"github.com/bigkaa/pocketshare/internal/api/middleware"
	"github.com/bigkaa/pocketshare/internal/config"
	"github.com/bigkaa/pocketshare/internal/database"
	"github.com/bigkaa/pocketshare/internal/repository"
	"github.com/bigkaa/pocketshare/internal/s3store"
	"github.com/bigkaa/pocketshare/internal/server"
	"github.com/bigkaa/pocketshare/internal/service"
	"github.com/bigkaa/pocketshare/internal/supabase"
	"github.com/bigkaa/pocketshare/internal/ui/auth"
	uihandlers "github.com/bigkaa/pocketshare/internal/ui/handlers"
	"github.com/bigkaa/pocketshare/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/pocketshare/internal/ui/middleware"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand создаёт корневую команду. Без подкоманды запускается сервер.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pocketshare",
		Short:         "Обмен файлами через bucket Supabase-совместимого backend",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Запустить веб-интерфейс",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context())
			},
		},
		newListCommand(),
		newUploadCommand(),
		newDownloadCommand(),
	)
	return root
}

// runServe собирает зависимости и запускает HTTP-сервер до сигнала завершения.
func runServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Запуск Pocket Share",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("bucket", cfg.Bucket),
		slog.String("storage_driver", cfg.StorageDriver),
		slog.String("fingerprint_store", cfg.FingerprintStore),
	)

	// 3. Клиент backend
	client, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.CACertPath, cfg.BackendTimeout, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента backend", slog.String("error", err.Error()))
		return err
	}

	// 4. Хранилище объектов
	store, err := openObjectStore(cfg, client, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища объектов", slog.String("error", err.Error()))
		return err
	}

	// 5. Хранилище отпечатков незавершённых загрузок
	fps, err := openFingerprints(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища отпечатков", slog.String("error", err.Error()))
		return err
	}
	defer fps.Close()

	janitor := service.NewFingerprintJanitor(fps.store, cfg.FingerprintPurgeInterval, cfg.FingerprintMaxAge, logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	// 6. topologymetrics — мониторинг backend (и PostgreSQL)
	var backendReady apihandlers.ReadinessChecker
	dephealthSvc, dhErr := service.NewDephealthService(service.DephealthOptions{
		ServiceID:     "pocketshare",
		Group:         cfg.DephealthGroup,
		BackendURL:    cfg.SupabaseURL,
		DB:            fps.sqlDB,
		PgConnURL:     fps.connURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dhErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dhErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		defer dephealthSvc.Stop()
		backendReady = dephealthSvc
	}

	// 7. Проверка access token
	sessions, err := auth.NewSessionManager(cfg.SessionSecret, cfg.CookieSecure)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		return err
	}
	if cfg.SessionSecret == "" {
		logger.Warn("PS_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	backendVerifier := auth.NewBackendVerifier(client, cfg.UserCacheTTL, logger)
	var verifier auth.TokenVerifier = backendVerifier
	if cfg.JWTVerify {
		jwksVerifier, err := auth.NewJWKSVerifier(cfg.JWKSURL, client.HTTPClient(), cfg.JWKSRefreshInterval, logger)
		if err != nil {
			logger.Error("Ошибка создания JWKS verifier", slog.String("error", err.Error()))
			return err
		}
		verifier = jwksVerifier
		logger.Info("Локальная проверка JWT включена", slog.String("jwks_url", cfg.JWKSURL))
	}

	// 8. Сервисы
	staging, err := service.NewStagingService(cfg.StagingDir, cfg.MaxUploadSize, cfg.StagingTTL, logger)
	if err != nil {
		logger.Error("Ошибка инициализации staging", slog.String("error", err.Error()))
		return err
	}
	defer staging.Close()

	bundles, err := service.NewBundleService(filepath.Join(cfg.StagingDir, "bundles"), cfg.BundleTTL, logger)
	if err != nil {
		logger.Error("Ошибка инициализации архивов скачивания", slog.String("error", err.Error()))
		return err
	}
	defer bundles.Close()

	watcher := service.NewAuthWatcher(logger)
	selections := service.NewSelectionService(cfg.SelectionTTL)
	listing := service.NewListingService(store, logger)
	downloads := service.NewDownloadService(store, client.TransferClient(), cfg.DownloadConcurrency, logger)
	uploads := service.NewUploadService(service.UploadOptions{
		Endpoint:   cfg.ResumableEndpoint(),
		Bucket:     cfg.Bucket,
		HTTPClient: client.TransferClient(),
		Store:      fps.store,
	}, staging, logger)

	// 9. Страницы: переводы
	if err := i18n.LoadFromEmbedFS(i18n.Init(logger), logger); err != nil {
		logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
		return err
	}

	swagger, err := generated.GetSwagger()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-документа", slog.String("error", err.Error()))
		return err
	}

	// 10. HTTP-сервер
	srv := server.New(cfg, logger, server.Components{
		API: apihandlers.NewAPIHandler(apihandlers.Services{
			Listing:    listing,
			Downloads:  downloads,
			Bundles:    bundles,
			Selections: selections,
			Staging:    staging,
			Uploads:    uploads,
		}, logger),
		Validator: middleware.NewOpenAPIValidator(swagger, logger),
		Health:    apihandlers.NewHealthHandler(backendReady, fps.ready),
		Gate:      uimiddleware.NewGate(sessions, client, verifier, watcher, logger),
		Auth: uihandlers.NewAuthHandler(
			client, sessions, watcher,
			uihandlers.NewLoginLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst),
			backendVerifier,
			logger,
			staging, selections,
		),
		Pages:  uihandlers.NewPagesHandler(listing, selections, staging, logger),
		Events: uihandlers.NewEventsHandler(watcher, cfg.SSEKeepalive, logger),
	})
	// Закрытие подписок завершает SSE-потоки до ожидания активных соединений
	srv.OnShutdown(watcher.Close)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Pocket Share остановлен")
	return nil
}

// openObjectStore выбирает драйвер хранилища объектов.
func openObjectStore(cfg *config.Config, client *supabase.Client, logger *slog.Logger) (service.ObjectStore, error) {
	if cfg.StorageDriver == config.StorageDriverS3 {
		store, err := s3store.New(s3store.Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.Bucket,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Хранилище объектов: S3", slog.String("endpoint", cfg.S3Endpoint))
		return store, nil
	}
	return supabase.NewStorage(client, cfg.Bucket), nil
}

// fingerprints — открытое хранилище отпечатков и связанные ресурсы.
type fingerprints struct {
	store repository.FingerprintStore
	// ready — проверка готовности (nil для хранения в памяти)
	ready apihandlers.ReadinessChecker
	// sqlDB — *sql.DB поверх pgxpool для topologymetrics (только postgres)
	sqlDB   *sql.DB
	connURL string
	closers []func()
}

// Close освобождает ресурсы хранилища в обратном порядке.
func (f *fingerprints) Close() {
	for i := len(f.closers) - 1; i >= 0; i-- {
		f.closers[i]()
	}
}

// openFingerprints открывает хранилище отпечатков согласно PS_FINGERPRINT_STORE.
func openFingerprints(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*fingerprints, error) {
	switch cfg.FingerprintStore {
	case config.FingerprintStoreSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &fingerprints{
			store:   repository.NewSQLiteFingerprints(db),
			ready:   database.NewSQLiteReadinessChecker(db),
			closers: []func(){func() { _ = db.Close() }},
		}, nil

	case config.FingerprintStorePostgres:
		// Миграции до создания пула, как при старте сервиса с БД
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, fmt.Errorf("миграции PostgreSQL: %w", err)
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return postgresFingerprints(cfg, pool), nil

	default:
		logger.Warn("Отпечатки загрузок хранятся в памяти и теряются при перезапуске")
		return &fingerprints{store: repository.NewMemoryFingerprints()}, nil
	}
}

func postgresFingerprints(cfg *config.Config, pool *pgxpool.Pool) *fingerprints {
	// *sql.DB поверх pgxpool для pgcheck (topologymetrics)
	sqlDB := stdlib.OpenDBFromPool(pool)
	return &fingerprints{
		store:   repository.NewPostgresFingerprints(pool),
		ready:   database.NewReadinessChecker(pool),
		sqlDB:   sqlDB,
		connURL: fmt.Sprintf("postgres://%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName),
		closers: []func(){pool.Close, func() { _ = sqlDB.Close() }},
	}
}
