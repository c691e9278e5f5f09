package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/pocketshare/internal/tus"
)

// PostgresFingerprints — хранилище отпечатков в PostgreSQL.
// Позволяет продолжать загрузки после перезапуска и между репликами сервиса.
type PostgresFingerprints struct {
	db DBTX
}

// NewPostgresFingerprints создаёт хранилище отпечатков PostgreSQL.
func NewPostgresFingerprints(db DBTX) *PostgresFingerprints {
	return &PostgresFingerprints{db: db}
}

// FindUploads возвращает загрузки с отпечатком fingerprint, новые первыми.
func (r *PostgresFingerprints) FindUploads(ctx context.Context, fingerprint string) ([]tus.PreviousUpload, error) {
	rows, err := r.db.Query(ctx, `
		SELECT key, fingerprint, upload_url, size, metadata, created_at
		FROM upload_fingerprints
		WHERE fingerprint = $1
		ORDER BY created_at DESC`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("поиск отпечатков: %w", err)
	}
	defer rows.Close()

	var out []tus.PreviousUpload
	for rows.Next() {
		var (
			u   tus.PreviousUpload
			key uuid.UUID
		)
		if err := rows.Scan(&key, &u.Fingerprint, &u.UploadURL, &u.Size, &u.Metadata, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("чтение отпечатка: %w", err)
		}
		u.Key = key.String()
		u.CreatedAt = u.CreatedAt.UTC()
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("чтение отпечатков: %w", err)
	}
	return out, nil
}

// AddUpload сохраняет загрузку под новым ключом.
func (r *PostgresFingerprints) AddUpload(ctx context.Context, u tus.PreviousUpload) (string, error) {
	key := uuid.New()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO upload_fingerprints (key, fingerprint, upload_url, size, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		key, u.Fingerprint, u.UploadURL, u.Size, nonNilMetadata(u.Metadata), u.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("сохранение отпечатка: %w", err)
	}
	return key.String(), nil
}

// RemoveUpload удаляет запись. Отсутствие записи не считается ошибкой.
func (r *PostgresFingerprints) RemoveUpload(ctx context.Context, key string) error {
	id, err := uuid.Parse(key)
	if err != nil {
		return fmt.Errorf("некорректный ключ отпечатка %q: %w", key, err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM upload_fingerprints WHERE key = $1`, id); err != nil {
		return fmt.Errorf("удаление отпечатка: %w", err)
	}
	return nil
}

// PurgeOlderThan удаляет записи, созданные раньше before.
func (r *PostgresFingerprints) PurgeOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM upload_fingerprints WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("очистка отпечатков: %w", err)
	}
	return tag.RowsAffected(), nil
}
