// Пакет repository — хранилища отпечатков незавершённых resumable-загрузок.
// Три реализации интерфейса tus.Store: в памяти процесса, SQLite и
// PostgreSQL. Все SQL-запросы — чистый SQL без ORM.
package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/pocketshare/internal/tus"
)

// FingerprintStore — хранилище отпечатков с очисткой устаревших записей.
type FingerprintStore interface {
	tus.Store
	// PurgeOlderThan удаляет записи, созданные раньше before.
	// Возвращает число удалённых записей.
	PurgeOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// DBTX — интерфейс для выполнения SQL-запросов PostgreSQL.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ FingerprintStore = (*MemoryFingerprints)(nil)
	_ FingerprintStore = (*SQLiteFingerprints)(nil)
	_ FingerprintStore = (*PostgresFingerprints)(nil)
)
