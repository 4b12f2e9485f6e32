package chatstore

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/chatwidget/pkg/widget/history"
)

// ThreadRecord is the listing metadata of a stored thread.
type ThreadRecord struct {
	ThreadID    string `json:"thread_id"`
	Messages    int    `json:"messages"`
	CreatedAtMs int64  `json:"created_at_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// ThreadStore persists raw thread documents, replaced wholesale on every
// write, the way the history update endpoint receives them.
type ThreadStore interface {
	Get(ctx context.Context, threadID string) (history.Document, bool, error)
	Put(ctx context.Context, doc history.Document) error
	// List returns threads most recently updated first.
	List(ctx context.Context, limit int) ([]ThreadRecord, error)
	Close() error
}

const defaultListLimit = 100

func normalizeThreadID(id string) string {
	return strings.TrimSpace(id)
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
