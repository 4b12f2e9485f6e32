package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore persists values in a single kv table.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: open")
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS widget_kv (
		key TEXT NOT NULL PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);`)
	return errors.Wrap(err, "sqlite store: migrate")
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("sqlite store: db is nil")
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM widget_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "sqlite store: get")
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store: db is nil")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO widget_kv(key, value, updated_at_ms) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms
	`, key, value, time.Now().UnixMilli())
	return errors.Wrap(err, "sqlite store: set")
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store: db is nil")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM widget_kv WHERE key = ?`, key)
	return errors.Wrap(err, "sqlite store: remove")
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
