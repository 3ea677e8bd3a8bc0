// Package postgres stores records in a single key/value table through pgx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"pokedex/internal/common/errors"
	"pokedex/internal/store"
)

type Store struct {
	db    *sql.DB
	dsn   string
	table string
}

// New parses the connection string; no connection is made until Init.
func New(dsn, table string) (*Store, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL connection string: %w", err)
	}
	if table == "" {
		table = "pokedex_kv"
	}

	return &Store{
		db:    stdlib.OpenDB(*connConfig),
		dsn:   dsn,
		table: pgx.Identifier{table}.Sanitize(),
	}, nil
}

func NewFromConfig(config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}
	return New(config.GetConnectionString(), config.tableName())
}

func (s *Store) Init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.StoreError("ping", "", err)
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, s.table))
	if err != nil {
		return errors.StoreError("migrate", "", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table), key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.StoreError("get", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.table), key, value)
	if err != nil {
		return errors.StoreError("set", key, err)
	}
	return nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table), key)
	if err != nil {
		return errors.StoreError("del", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT key FROM %s WHERE key LIKE $1 ESCAPE '\'`, s.table),
		store.EscapeLike(prefix)+"%")
	if err != nil {
		return nil, errors.StoreError("keys", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.StoreError("keys", prefix, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("keys", prefix, err)
	}
	return keys, nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type Factory struct{}

func (f *Factory) Create(opts store.Options) (store.Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("postgres store requires a connection string")
	}
	return New(opts.DSN, "")
}

func (f *Factory) Type() string {
	return "postgres"
}

func init() {
	store.Register(&Factory{})
}
