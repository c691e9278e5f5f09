package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"PS_SUPABASE_URL":      "https://project.supabase.co/",
		"PS_SUPABASE_ANON_KEY": "anon-key",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.SupabaseURL != "https://project.supabase.co" {
		t.Errorf("SupabaseURL = %q, ожидается без завершающего слэша", cfg.SupabaseURL)
	}
	if cfg.Bucket != "look" {
		t.Errorf("Bucket = %q, ожидается look", cfg.Bucket)
	}
	if cfg.StorageDriver != StorageDriverREST {
		t.Errorf("StorageDriver = %q, ожидается rest", cfg.StorageDriver)
	}
	if cfg.FingerprintStore != FingerprintStoreMemory {
		t.Errorf("FingerprintStore = %q, ожидается memory", cfg.FingerprintStore)
	}
	if cfg.JWKSURL != "https://project.supabase.co/auth/v1/.well-known/jwks.json" {
		t.Errorf("JWKSURL = %q", cfg.JWKSURL)
	}
	if cfg.BackendTimeout != 30*time.Second {
		t.Errorf("BackendTimeout = %v, ожидается 30s", cfg.BackendTimeout)
	}
	if cfg.DownloadConcurrency != 0 {
		t.Errorf("DownloadConcurrency = %d, ожидается 0", cfg.DownloadConcurrency)
	}
	if cfg.MaxUploadSize != 1<<30 {
		t.Errorf("MaxUploadSize = %d, ожидается 1 GiB", cfg.MaxUploadSize)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
	if got := cfg.ResumableEndpoint(); got != "https://project.supabase.co/storage/v1/upload/resumable" {
		t.Errorf("ResumableEndpoint() = %q", got)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["PS_PORT"] = "9000"
	envs["PS_LOG_LEVEL"] = "debug"
	envs["PS_LOG_FORMAT"] = "text"
	envs["PS_BUCKET"] = "shared"
	envs["PS_COOKIE_SECURE"] = "true"
	envs["PS_JWT_VERIFY"] = "1"
	envs["PS_FINGERPRINT_STORE"] = "sqlite"
	envs["PS_SQLITE_PATH"] = "/data/ps.db"
	envs["PS_DOWNLOAD_CONCURRENCY"] = "8"
	envs["PS_SHUTDOWN_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, ожидается 9000", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.Bucket != "shared" {
		t.Errorf("Bucket = %q, ожидается shared", cfg.Bucket)
	}
	if !cfg.CookieSecure || !cfg.JWTVerify {
		t.Errorf("CookieSecure=%v JWTVerify=%v, ожидается true/true", cfg.CookieSecure, cfg.JWTVerify)
	}
	if cfg.SQLitePath != "/data/ps.db" {
		t.Errorf("SQLitePath = %q", cfg.SQLitePath)
	}
	if cfg.DownloadConcurrency != 8 {
		t.Errorf("DownloadConcurrency = %d, ожидается 8", cfg.DownloadConcurrency)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_Postgres(t *testing.T) {
	envs := minimalEnvs()
	envs["PS_FINGERPRINT_STORE"] = "postgres"
	envs["PS_DB_HOST"] = "db"
	envs["PS_DB_NAME"] = "pocketshare"
	envs["PS_DB_USER"] = "ps"
	envs["PS_DB_PASSWORD"] = "secret"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	want := "host=db port=5432 dbname=pocketshare user=ps password=secret sslmode=disable"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", got, want)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{
			name:    "нет URL backend",
			envs:    map[string]string{"PS_SUPABASE_ANON_KEY": "k"},
			wantErr: "PS_SUPABASE_URL",
		},
		{
			name:    "нет анонимного ключа",
			envs:    map[string]string{"PS_SUPABASE_URL": "http://x"},
			wantErr: "PS_SUPABASE_ANON_KEY",
		},
		{
			name:    "порт вне диапазона",
			envs:    map[string]string{"PS_PORT": "70000"},
			wantErr: "PS_PORT",
		},
		{
			name:    "неизвестный драйвер",
			envs:    map[string]string{"PS_STORAGE_DRIVER": "ftp"},
			wantErr: "PS_STORAGE_DRIVER",
		},
		{
			name:    "s3 без endpoint",
			envs:    map[string]string{"PS_STORAGE_DRIVER": "s3"},
			wantErr: "PS_S3_ENDPOINT",
		},
		{
			name:    "неизвестное хранилище отпечатков",
			envs:    map[string]string{"PS_FINGERPRINT_STORE": "redis"},
			wantErr: "PS_FINGERPRINT_STORE",
		},
		{
			name:    "postgres без хоста",
			envs:    map[string]string{"PS_FINGERPRINT_STORE": "postgres"},
			wantErr: "PS_DB_HOST",
		},
		{
			name:    "некорректный bool",
			envs:    map[string]string{"PS_COOKIE_SECURE": "maybe"},
			wantErr: "PS_COOKIE_SECURE",
		},
		{
			name:    "отрицательная параллельность",
			envs:    map[string]string{"PS_DOWNLOAD_CONCURRENCY": "-1"},
			wantErr: "PS_DOWNLOAD_CONCURRENCY",
		},
		{
			name:    "некорректная длительность",
			envs:    map[string]string{"PS_STAGING_TTL": "час"},
			wantErr: "PS_STAGING_TTL",
		},
		{
			name:    "некорректный формат логов",
			envs:    map[string]string{"PS_LOG_FORMAT": "xml"},
			wantErr: "PS_LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			if _, ok := tt.envs["PS_SUPABASE_ANON_KEY"]; ok {
				delete(envs, "PS_SUPABASE_URL")
			}
			if _, ok := tt.envs["PS_SUPABASE_URL"]; ok {
				delete(envs, "PS_SUPABASE_ANON_KEY")
			}
			for k, v := range tt.envs {
				envs[k] = v
			}
			// Пустые значения равнозначны отсутствию переменной.
			t.Setenv("PS_SUPABASE_URL", "")
			t.Setenv("PS_SUPABASE_ANON_KEY", "")
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Fatal("ожидалась ошибка")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка %q не содержит %q", err.Error(), tt.wantErr)
			}
		})
	}
}
