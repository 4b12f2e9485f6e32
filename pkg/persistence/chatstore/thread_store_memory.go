package chatstore

import (
	"context"
	"sort"
	"sync"

	"github.com/go-go-golems/chatwidget/pkg/widget/history"
	"github.com/pkg/errors"
)

// InMemoryThreadStore is a size-limited ThreadStore. When full, the thread
// updated longest ago is evicted.
type InMemoryThreadStore struct {
	mu         sync.Mutex
	maxThreads int
	threads    map[string]*inMemThread
}

type inMemThread struct {
	doc    history.Document
	record ThreadRecord
}

var _ ThreadStore = &InMemoryThreadStore{}

func NewInMemoryThreadStore(maxThreads int) *InMemoryThreadStore {
	if maxThreads <= 0 {
		maxThreads = 1000
	}
	return &InMemoryThreadStore{maxThreads: maxThreads, threads: map[string]*inMemThread{}}
}

func (s *InMemoryThreadStore) Close() error { return nil }

func (s *InMemoryThreadStore) Get(_ context.Context, threadID string) (history.Document, bool, error) {
	if s == nil {
		return history.Document{}, false, errors.New("in-memory thread store: nil store")
	}
	threadID = normalizeThreadID(threadID)
	if threadID == "" {
		return history.Document{}, false, errors.New("in-memory thread store: threadID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return history.Document{}, false, nil
	}
	return t.doc.Clone(), true, nil
}

func (s *InMemoryThreadStore) Put(_ context.Context, doc history.Document) error {
	if s == nil {
		return errors.New("in-memory thread store: nil store")
	}
	doc.ThreadID = normalizeThreadID(doc.ThreadID)
	if doc.ThreadID == "" {
		return errors.New("in-memory thread store: threadID is empty")
	}
	now := nowMs()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[doc.ThreadID]
	if !ok {
		s.evictLocked()
		t = &inMemThread{record: ThreadRecord{ThreadID: doc.ThreadID, CreatedAtMs: now}}
		s.threads[doc.ThreadID] = t
	}
	t.doc = doc.Clone()
	t.record.Messages = doc.Len()
	t.record.UpdatedAtMs = now
	return nil
}

func (s *InMemoryThreadStore) evictLocked() {
	if len(s.threads) < s.maxThreads {
		return
	}
	var oldest string
	var oldestMs int64
	for id, t := range s.threads {
		if oldest == "" || t.record.UpdatedAtMs < oldestMs {
			oldest, oldestMs = id, t.record.UpdatedAtMs
		}
	}
	delete(s.threads, oldest)
}

func (s *InMemoryThreadStore) List(_ context.Context, limit int) ([]ThreadRecord, error) {
	if s == nil {
		return nil, errors.New("in-memory thread store: nil store")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.Lock()
	out := make([]ThreadRecord, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.record)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAtMs == out[j].UpdatedAtMs {
			return out[i].ThreadID < out[j].ThreadID
		}
		return out[i].UpdatedAtMs > out[j].UpdatedAtMs
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
