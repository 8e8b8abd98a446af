package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS mna_cache (
	key         TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	ttl_seconds BIGINT NOT NULL DEFAULT 0
)`

// PostgresStore is the durable key-value driver. Rows survive restarts and
// expire lazily on read; PurgeExpired reclaims space in bulk.
type PostgresStore struct {
	db        *pgxpool.Pool
	namespace string
	now       nowFunc
}

// NewPostgresStore returns a store over db. Call EnsureSchema once before use.
func NewPostgresStore(db *pgxpool.Pool, namespace string) *PostgresStore {
	if db == nil {
		panic("postgres pool cannot be nil")
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &PostgresStore{db: db, namespace: namespace, now: time.Now}
}

// EnsureSchema creates the cache table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const op = "cache.postgres.EnsureSchema"

	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	const op = "cache.postgres.Get"

	var entry Entry
	err := s.db.QueryRow(ctx,
		`SELECT value, created_at, ttl_seconds FROM mna_cache WHERE key = $1`,
		s.namespace+key,
	).Scan(&entry.Value, &entry.CreatedAt, &entry.TTL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if entry.Expired(s.now()) {
		_, _ = s.db.Exec(ctx, `DELETE FROM mna_cache WHERE key = $1`, s.namespace+key)
		return "", ErrCacheMiss
	}
	return entry.Value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const op = "cache.postgres.Set"

	entry := NewEntry(value, ttl, s.now())
	_, err := s.db.Exec(ctx, `
		INSERT INTO mna_cache (key, value, created_at, ttl_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			created_at = EXCLUDED.created_at,
			ttl_seconds = EXCLUDED.ttl_seconds`,
		s.namespace+key, entry.Value, entry.CreatedAt.UTC(), entry.TTL,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	const op = "cache.postgres.Delete"

	if _, err := s.db.Exec(ctx, `DELETE FROM mna_cache WHERE key = $1`, s.namespace+key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) Flush(ctx context.Context) error {
	const op = "cache.postgres.Flush"

	if _, err := s.db.Exec(ctx, `DELETE FROM mna_cache WHERE starts_with(key, $1)`, s.namespace); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PurgeExpired deletes every expired row in the namespace and returns how
// many were removed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	const op = "cache.postgres.PurgeExpired"

	tag, err := s.db.Exec(ctx, `
		DELETE FROM mna_cache
		WHERE starts_with(key, $1)
		  AND ttl_seconds > 0
		  AND created_at + make_interval(secs => ttl_seconds) < $2`,
		s.namespace, s.now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.Ping(ctx) == nil
}

func (s *PostgresStore) Name() string { return "transient" }
