package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatwidget/pkg/widget/history"
)

type SQLiteThreadStore struct {
	db *sql.DB
}

var _ ThreadStore = &SQLiteThreadStore{}

func NewSQLiteThreadStore(dsn string) (*SQLiteThreadStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite thread store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteThreadStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteThreadStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS widget_threads (
			thread_id TEXT PRIMARY KEY,
			document_json TEXT NOT NULL,
			messages INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS widget_threads_updated ON widget_threads(updated_at_ms DESC);
	`)
	if err != nil {
		return errors.Wrap(err, "sqlite thread store: migrate")
	}
	return nil
}

func (s *SQLiteThreadStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteThreadStore) Get(ctx context.Context, threadID string) (history.Document, bool, error) {
	if s == nil || s.db == nil {
		return history.Document{}, false, errors.New("sqlite thread store: db is nil")
	}
	threadID = normalizeThreadID(threadID)
	if threadID == "" {
		return history.Document{}, false, errors.New("sqlite thread store: threadID is empty")
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT document_json FROM widget_threads WHERE thread_id = ?`, threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Document{}, false, nil
	}
	if err != nil {
		return history.Document{}, false, errors.Wrap(err, "sqlite thread store: get thread")
	}
	doc, err := history.ParseDocument([]byte(raw))
	if err != nil {
		return history.Document{}, false, errors.Wrap(err, "sqlite thread store: decode document")
	}
	doc.ThreadID = threadID
	return doc, true, nil
}

func (s *SQLiteThreadStore) Put(ctx context.Context, doc history.Document) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite thread store: db is nil")
	}
	doc.ThreadID = normalizeThreadID(doc.ThreadID)
	if doc.ThreadID == "" {
		return errors.New("sqlite thread store: threadID is empty")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "sqlite thread store: encode document")
	}
	now := nowMs()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO widget_threads (thread_id, document_json, messages, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			document_json = excluded.document_json,
			messages = excluded.messages,
			updated_at_ms = excluded.updated_at_ms
	`, doc.ThreadID, string(raw), doc.Len(), now, now)
	if err != nil {
		return errors.Wrap(err, "sqlite thread store: put thread")
	}
	return nil
}

func (s *SQLiteThreadStore) List(ctx context.Context, limit int) ([]ThreadRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite thread store: db is nil")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, messages, created_at_ms, updated_at_ms
		FROM widget_threads
		ORDER BY updated_at_ms DESC, thread_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite thread store: list threads")
	}
	defer func() { _ = rows.Close() }()

	var out []ThreadRecord
	for rows.Next() {
		var r ThreadRecord
		if err := rows.Scan(&r.ThreadID, &r.Messages, &r.CreatedAtMs, &r.UpdatedAtMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SQLiteThreadDSNForFile returns a DSN for a database file.
func SQLiteThreadDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite thread store: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}
