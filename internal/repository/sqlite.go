package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/pocketshare/internal/tus"
)

// SQLiteFingerprints — хранилище отпечатков в SQLite.
type SQLiteFingerprints struct {
	db *sql.DB
}

// NewSQLiteFingerprints создаёт хранилище поверх открытой БД с применёнными миграциями.
func NewSQLiteFingerprints(db *sql.DB) *SQLiteFingerprints {
	return &SQLiteFingerprints{db: db}
}

// FindUploads возвращает загрузки с отпечатком fingerprint, новые первыми.
func (r *SQLiteFingerprints) FindUploads(ctx context.Context, fingerprint string) ([]tus.PreviousUpload, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, fingerprint, upload_url, size, metadata, created_at
		FROM upload_fingerprints
		WHERE fingerprint = ?
		ORDER BY created_at DESC`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("поиск отпечатков: %w", err)
	}
	defer rows.Close()

	var out []tus.PreviousUpload
	for rows.Next() {
		var (
			u         tus.PreviousUpload
			metadata  string
			createdAt int64
		)
		if err := rows.Scan(&u.Key, &u.Fingerprint, &u.UploadURL, &u.Size, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("чтение отпечатка: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &u.Metadata); err != nil {
			return nil, fmt.Errorf("метаданные отпечатка %s: %w", u.Key, err)
		}
		u.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("чтение отпечатков: %w", err)
	}
	return out, nil
}

// AddUpload сохраняет загрузку под новым ключом.
func (r *SQLiteFingerprints) AddUpload(ctx context.Context, u tus.PreviousUpload) (string, error) {
	key := uuid.NewString()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(nonNilMetadata(u.Metadata))
	if err != nil {
		return "", fmt.Errorf("кодирование метаданных: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO upload_fingerprints (key, fingerprint, upload_url, size, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key, u.Fingerprint, u.UploadURL, u.Size, string(metadata), u.CreatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("сохранение отпечатка: %w", err)
	}
	return key, nil
}

// RemoveUpload удаляет запись. Отсутствие записи не считается ошибкой.
func (r *SQLiteFingerprints) RemoveUpload(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_fingerprints WHERE key = ?`, key); err != nil {
		return fmt.Errorf("удаление отпечатка: %w", err)
	}
	return nil
}

// PurgeOlderThan удаляет записи, созданные раньше before.
func (r *SQLiteFingerprints) PurgeOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_fingerprints WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("очистка отпечатков: %w", err)
	}
	return res.RowsAffected()
}

func nonNilMetadata(md map[string]string) map[string]string {
	if md == nil {
		return map[string]string{}
	}
	return md
}
