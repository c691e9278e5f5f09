// Пакет config — загрузка и валидация конфигурации Pocket Share
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые драйверы хранилища объектов.
const (
	StorageDriverREST = "rest"
	StorageDriverS3   = "s3"
)

// Допустимые хранилища отпечатков resumable-загрузок.
const (
	FingerprintStoreMemory   = "memory"
	FingerprintStoreSQLite   = "sqlite"
	FingerprintStorePostgres = "postgres"
)

// Config содержит все параметры конфигурации Pocket Share.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Backend (Supabase-совместимый) ---

	// Базовый URL backend (например, https://xyz.supabase.co)
	SupabaseURL string
	// Анонимный API-ключ, передаётся в заголовке apikey
	SupabaseAnonKey string
	// Имя bucket с файлами
	Bucket string
	// Таймаут HTTP-запросов к backend
	BackendTimeout time.Duration
	// Путь к CA-сертификату для TLS-соединений с backend (опционально)
	CACertPath string

	// --- Хранилище объектов ---

	// Драйвер: rest (Storage API) или s3 (S3-совместимый endpoint)
	StorageDriver string
	// S3 endpoint (host:port), обязателен для драйвера s3
	S3Endpoint string
	// Регион S3
	S3Region string
	// Access key S3
	S3AccessKey string
	// Secret key S3
	S3SecretKey string
	// Использовать TLS для S3
	S3UseSSL bool

	// --- Сессии и JWT ---

	// Секрет шифрования cookie сессии (пустой — случайный ключ)
	SessionSecret string
	// Флаг Secure для cookie сессии
	CookieSecure bool
	// Локальная проверка access token по JWKS
	JWTVerify bool
	// URL JWKS endpoint (авто-вычисляется из SupabaseURL, если не задан)
	JWKSURL string
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Время кэширования ответа get-current-user
	UserCacheTTL time.Duration

	// --- Загрузки ---

	// Хранилище отпечатков: memory, sqlite, postgres
	FingerprintStore string
	// Путь к файлу SQLite
	SQLitePath string
	// Возраст, после которого отпечаток незавершённой загрузки удаляется
	FingerprintMaxAge time.Duration
	// Интервал очистки устаревших отпечатков
	FingerprintPurgeInterval time.Duration
	// Каталог для staged-файлов
	StagingDir string
	// Время жизни области staging без обращений
	StagingTTL time.Duration
	// Максимальный размер одного staged-файла в байтах
	MaxUploadSize int64

	// --- PostgreSQL (для FingerprintStore=postgres) ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Скачивания и выбор ---

	// Ограничение параллельных скачиваний в пакете (0 — без ограничения)
	DownloadConcurrency int
	// Время жизни набора выбранных файлов
	SelectionTTL time.Duration
	// Время жизни подготовленного архива пакетного скачивания
	BundleTTL time.Duration

	// --- Вход ---

	// Допустимое число попыток входа в минуту с одного адреса
	LoginRatePerMinute int
	// Запас попыток входа сверх средней скорости
	LoginBurst int
	// Интервал keepalive для SSE-потока событий сессии
	SSEKeepalive time.Duration

	// --- Зависимости ---

	// Группа сервиса для topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- CLI ---

	// Email для входа из CLI
	Email string
	// Пароль для входа из CLI
	Password string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// PS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("PS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// PS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PS_LOG_LEVEL: %w", err)
	}

	// PS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Backend ---

	// PS_SUPABASE_URL — обязательный
	cfg.SupabaseURL, err = getEnvRequired("PS_SUPABASE_URL")
	if err != nil {
		return nil, err
	}
	cfg.SupabaseURL = strings.TrimRight(cfg.SupabaseURL, "/")

	// PS_SUPABASE_ANON_KEY — обязательный
	cfg.SupabaseAnonKey, err = getEnvRequired("PS_SUPABASE_ANON_KEY")
	if err != nil {
		return nil, err
	}

	// PS_BUCKET — bucket с файлами (по умолчанию look)
	cfg.Bucket = getEnvDefault("PS_BUCKET", "look")

	// PS_BACKEND_TIMEOUT — таймаут запросов к backend (по умолчанию 30s)
	cfg.BackendTimeout, err = getEnvDuration("PS_BACKEND_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_BACKEND_TIMEOUT: %w", err)
	}

	// PS_CA_CERT_PATH — путь к CA-сертификату (опционально)
	cfg.CACertPath = getEnvDefault("PS_CA_CERT_PATH", "")

	// --- Хранилище объектов ---

	// PS_STORAGE_DRIVER — rest или s3 (по умолчанию rest)
	cfg.StorageDriver = getEnvDefault("PS_STORAGE_DRIVER", StorageDriverREST)
	switch cfg.StorageDriver {
	case StorageDriverREST:
	case StorageDriverS3:
		cfg.S3Endpoint, err = getEnvRequired("PS_S3_ENDPOINT")
		if err != nil {
			return nil, err
		}
		cfg.S3AccessKey, err = getEnvRequired("PS_S3_ACCESS_KEY")
		if err != nil {
			return nil, err
		}
		cfg.S3SecretKey, err = getEnvRequired("PS_S3_SECRET_KEY")
		if err != nil {
			return nil, err
		}
		cfg.S3Region = getEnvDefault("PS_S3_REGION", "us-east-1")
		cfg.S3UseSSL, err = getEnvBool("PS_S3_USE_SSL", true)
		if err != nil {
			return nil, fmt.Errorf("PS_S3_USE_SSL: %w", err)
		}
	default:
		return nil, fmt.Errorf("PS_STORAGE_DRIVER: недопустимое значение %q, допустимые: rest, s3", cfg.StorageDriver)
	}

	// --- Сессии и JWT ---

	// PS_SESSION_SECRET — секрет шифрования cookie (опционально)
	cfg.SessionSecret = getEnvDefault("PS_SESSION_SECRET", "")

	// PS_COOKIE_SECURE — флаг Secure (по умолчанию false)
	cfg.CookieSecure, err = getEnvBool("PS_COOKIE_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("PS_COOKIE_SECURE: %w", err)
	}

	// PS_JWT_VERIFY — локальная проверка токенов (по умолчанию false)
	cfg.JWTVerify, err = getEnvBool("PS_JWT_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("PS_JWT_VERIFY: %w", err)
	}

	// PS_JWKS_URL — авто-вычисляется из SupabaseURL, если не задан
	cfg.JWKSURL = getEnvDefault("PS_JWKS_URL", cfg.SupabaseURL+"/auth/v1/.well-known/jwks.json")

	// PS_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("PS_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PS_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// PS_USER_CACHE_TTL — кэш get-current-user (по умолчанию 1m)
	cfg.UserCacheTTL, err = getEnvDuration("PS_USER_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PS_USER_CACHE_TTL: %w", err)
	}

	// --- Загрузки ---

	// PS_FINGERPRINT_STORE — memory, sqlite или postgres (по умолчанию memory)
	cfg.FingerprintStore = getEnvDefault("PS_FINGERPRINT_STORE", FingerprintStoreMemory)
	switch cfg.FingerprintStore {
	case FingerprintStoreMemory:
	case FingerprintStoreSQLite:
		cfg.SQLitePath = getEnvDefault("PS_SQLITE_PATH", "pocketshare.db")
	case FingerprintStorePostgres:
		if err := cfg.loadPostgres(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("PS_FINGERPRINT_STORE: недопустимое значение %q, допустимые: memory, sqlite, postgres", cfg.FingerprintStore)
	}

	// PS_FINGERPRINT_MAX_AGE — срок хранения отпечатков (по умолчанию 24h)
	cfg.FingerprintMaxAge, err = getEnvDuration("PS_FINGERPRINT_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PS_FINGERPRINT_MAX_AGE: %w", err)
	}

	// PS_FINGERPRINT_PURGE_INTERVAL — интервал очистки отпечатков (по умолчанию 1h)
	cfg.FingerprintPurgeInterval, err = getEnvDuration("PS_FINGERPRINT_PURGE_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PS_FINGERPRINT_PURGE_INTERVAL: %w", err)
	}
	if cfg.FingerprintPurgeInterval <= 0 {
		return nil, fmt.Errorf("PS_FINGERPRINT_PURGE_INTERVAL: значение должно быть положительным")
	}

	// PS_STAGING_DIR — каталог staged-файлов
	cfg.StagingDir = getEnvDefault("PS_STAGING_DIR", filepath.Join(os.TempDir(), "pocketshare-staging"))

	// PS_STAGING_TTL — время жизни области staging (по умолчанию 1h)
	cfg.StagingTTL, err = getEnvDuration("PS_STAGING_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PS_STAGING_TTL: %w", err)
	}

	// PS_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 1 GiB)
	maxUpload, err := getEnvInt("PS_MAX_UPLOAD_SIZE", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("PS_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload < 1 {
		return nil, fmt.Errorf("PS_MAX_UPLOAD_SIZE: значение %d должно быть положительным", maxUpload)
	}
	cfg.MaxUploadSize = int64(maxUpload)

	// --- Скачивания и выбор ---

	// PS_DOWNLOAD_CONCURRENCY — ограничение параллельности (по умолчанию 0)
	cfg.DownloadConcurrency, err = getEnvInt("PS_DOWNLOAD_CONCURRENCY", 0)
	if err != nil {
		return nil, fmt.Errorf("PS_DOWNLOAD_CONCURRENCY: %w", err)
	}
	if cfg.DownloadConcurrency < 0 {
		return nil, fmt.Errorf("PS_DOWNLOAD_CONCURRENCY: значение %d не может быть отрицательным", cfg.DownloadConcurrency)
	}

	// PS_SELECTION_TTL — время жизни выбора (по умолчанию 1h)
	cfg.SelectionTTL, err = getEnvDuration("PS_SELECTION_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PS_SELECTION_TTL: %w", err)
	}

	// PS_BUNDLE_TTL — время жизни архива (по умолчанию 10m)
	cfg.BundleTTL, err = getEnvDuration("PS_BUNDLE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PS_BUNDLE_TTL: %w", err)
	}

	// --- Вход ---

	// PS_LOGIN_RATE_PER_MINUTE — попыток входа в минуту (по умолчанию 10)
	cfg.LoginRatePerMinute, err = getEnvInt("PS_LOGIN_RATE_PER_MINUTE", 10)
	if err != nil {
		return nil, fmt.Errorf("PS_LOGIN_RATE_PER_MINUTE: %w", err)
	}
	if cfg.LoginRatePerMinute < 1 {
		return nil, fmt.Errorf("PS_LOGIN_RATE_PER_MINUTE: значение %d должно быть положительным", cfg.LoginRatePerMinute)
	}

	// PS_LOGIN_BURST — запас попыток (по умолчанию 5)
	cfg.LoginBurst, err = getEnvInt("PS_LOGIN_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("PS_LOGIN_BURST: %w", err)
	}
	if cfg.LoginBurst < 1 {
		return nil, fmt.Errorf("PS_LOGIN_BURST: значение %d должно быть положительным", cfg.LoginBurst)
	}

	// PS_SSE_KEEPALIVE — интервал keepalive SSE (по умолчанию 15s)
	cfg.SSEKeepalive, err = getEnvDuration("PS_SSE_KEEPALIVE", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_SSE_KEEPALIVE: %w", err)
	}

	// --- Зависимости ---

	// PS_DEPHEALTH_GROUP — группа сервиса (по умолчанию pocketshare)
	cfg.DephealthGroup = getEnvDefault("PS_DEPHEALTH_GROUP", "pocketshare")

	// PS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("PS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- CLI ---

	cfg.Email = getEnvDefault("PS_EMAIL", "")
	cfg.Password = getEnvDefault("PS_PASSWORD", "")

	// --- Graceful shutdown ---

	// PS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("PS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadPostgres загружает параметры PostgreSQL для хранилища отпечатков.
func (c *Config) loadPostgres() error {
	var err error

	c.DBHost, err = getEnvRequired("PS_DB_HOST")
	if err != nil {
		return err
	}
	c.DBPort, err = getEnvInt("PS_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("PS_DB_PORT: %w", err)
	}
	c.DBName, err = getEnvRequired("PS_DB_NAME")
	if err != nil {
		return err
	}
	c.DBUser, err = getEnvRequired("PS_DB_USER")
	if err != nil {
		return err
	}
	c.DBPassword, err = getEnvRequired("PS_DB_PASSWORD")
	if err != nil {
		return err
	}

	c.DBSSLMode = getEnvDefault("PS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[c.DBSSLMode] {
		return fmt.Errorf("PS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", c.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// ResumableEndpoint возвращает URL tus-endpoint backend.
func (c *Config) ResumableEndpoint() string {
	return c.SupabaseURL + "/storage/v1/upload/resumable"
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
