package history

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrStaleLoad is returned when a load resolved for a thread that is no
// longer the session's thread. Its result was discarded.
var ErrStaleLoad = errors.New("history: thread changed while loading")

// Poster sends a JSON body with POST.
type Poster interface {
	PostJSON(ctx context.Context, url string, body any) (*http.Response, error)
}

// ThreadSource reports the session's current thread id ("" when none).
type ThreadSource interface {
	ThreadID() string
}

// Cache is the local mirror of one thread's remote document.
type Cache struct {
	client    Poster
	updateURL string
	threads   ThreadSource
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	doc     Document
	entries []Entry
	// gen counts Clear calls; a load started in an older generation is stale.
	gen uint64
}

type Option func(*Cache)

// WithUpdateURL sets the endpoint that receives the full document after a
// synced append.
func WithUpdateURL(url string) Option {
	return func(c *Cache) { c.updateURL = strings.TrimSpace(url) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithIDSource overrides the generator of local entry ids.
func WithIDSource(newID func() string) Option {
	return func(c *Cache) { c.newID = newID }
}

func NewCache(client Poster, threads ThreadSource, opts ...Option) *Cache {
	c := &Cache{
		client:  client,
		threads: threads,
		now:     time.Now,
		newID:   func() string { return "local-" + uuid.NewString() },
		doc:     Document{Value: Value{Data: []json.RawMessage{}}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the document of threadID and replaces the mirror with it.
// On failure the mirror is emptied and the error returned. A result that
// arrives after the session moved to another thread, or after Clear, is
// discarded and ErrStaleLoad returned.
func (c *Cache) Load(ctx context.Context, url string, threadID string) error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	doc, fetchErr := c.fetch(ctx, url, threadID)
	current := threadID
	if c.threads != nil {
		current = c.threads.ThreadID()
	}

	c.mu.Lock()
	if gen != c.gen || current != threadID {
		c.mu.Unlock()
		log.Debug().Str("component", "history").Str("thread_id", threadID).Msg("discarding history for stale thread")
		return ErrStaleLoad
	}
	if fetchErr != nil {
		c.clearLocked()
		c.mu.Unlock()
		log.Error().Err(fetchErr).Str("component", "history").Str("thread_id", threadID).Msg("failed to load thread history")
		return fetchErr
	}
	entries := Normalize(doc, c.now())
	c.doc = doc
	c.entries = entries
	c.mu.Unlock()

	log.Debug().Str("component", "history").Str("thread_id", threadID).Int("entries", len(entries)).Msg("loaded thread history")
	return nil
}

func (c *Cache) fetch(ctx context.Context, url string, threadID string) (Document, error) {
	if c.client == nil {
		return Document{}, errors.New("history: no http client")
	}
	resp, err := c.client.PostJSON(ctx, url, map[string]string{"threadId": threadID})
	if err != nil {
		return Document{}, errors.Wrap(err, "fetch thread history")
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, errors.Wrap(err, "read thread history")
	}
	doc, err := ParseDocument(body)
	if err != nil {
		return Document{}, errors.Wrap(err, "decode thread history")
	}
	return doc, nil
}

// Append records e at the head of the document. With syncWithServer the
// whole updated document is posted to the update endpoint once; failures
// are logged and dropped and the local append stands.
func (c *Cache) Append(ctx context.Context, e Entry, syncWithServer bool) {
	wire := ToWire(e, c.newID())
	raw, err := json.Marshal(wire)
	if err != nil {
		log.Error().Err(err).Str("component", "history").Msg("failed to encode history entry")
		return
	}

	c.mu.Lock()
	c.doc.Value.Data = append([]json.RawMessage{raw}, c.doc.Value.Data...)
	c.entries = append(c.entries, e)
	snapshot := c.doc.Clone()
	c.mu.Unlock()

	if !syncWithServer {
		return
	}
	if c.updateURL == "" {
		log.Debug().Str("component", "history").Msg("no update endpoint configured, skipping sync")
		return
	}
	if snapshot.ThreadID == "" && c.threads != nil {
		snapshot.ThreadID = c.threads.ThreadID()
	}
	if err := c.push(ctx, snapshot); err != nil {
		log.Warn().Err(err).Str("component", "history").Str("thread_id", snapshot.ThreadID).Msg("history sync failed")
	}
}

func (c *Cache) push(ctx context.Context, doc Document) error {
	if c.client == nil {
		return errors.New("history: no http client")
	}
	resp, err := c.client.PostJSON(ctx, c.updateURL, doc)
	if err != nil {
		return errors.Wrap(err, "update thread history")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Entries returns a copy of the normalized list.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Document returns a copy of the raw mirror.
func (c *Cache) Document() Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone()
}

// Clear empties the mirror and the normalized list.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.clearLocked()
}

func (c *Cache) clearLocked() {
	c.doc = Document{Value: Value{Data: []json.RawMessage{}}}
	c.entries = nil
}
