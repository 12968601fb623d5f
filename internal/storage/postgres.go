package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore keeps entries in the kv_entries table of the storefront
// schema. Expired rows are treated as absent and removed lazily.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT value, expires_at
		FROM kv_entries
		WHERE key = $1
	`, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if expiresAt.Valid && !s.now().Before(expiresAt.Time) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1 AND expires_at <= $2`, key, expiresAt.Time)
		return nil, ErrNotFound
	}

	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: s.now().Add(ttl).UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`, key, value, expiresAt)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key)
	return err
}

func (s *PostgresStore) Pop(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		DELETE FROM kv_entries
		WHERE key = $1
		RETURNING value, expires_at
	`, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if expiresAt.Valid && !s.now().Before(expiresAt.Time) {
		return nil, ErrNotFound
	}

	return value, nil
}
