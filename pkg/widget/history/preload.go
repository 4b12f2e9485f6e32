package history

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Preloader runs at most one history load per thread id. Concurrent callers
// share the in-flight load and later callers get the settled outcome.
type Preloader struct {
	cache *Cache
	url   string
	group singleflight.Group

	mu      sync.Mutex
	started map[string]bool
	settled map[string]error
}

func NewPreloader(cache *Cache, url string) *Preloader {
	return &Preloader{
		cache:   cache,
		url:     url,
		started: map[string]bool{},
		settled: map[string]error{},
	}
}

// Start begins the load of threadID in the background if it was never
// started.
func (p *Preloader) Start(threadID string) {
	p.mu.Lock()
	if p.started[threadID] {
		p.mu.Unlock()
		return
	}
	p.started[threadID] = true
	p.mu.Unlock()

	go func() { _ = p.Wait(context.Background(), threadID) }()
}

// Started reports whether a load for threadID was requested.
func (p *Preloader) Started(threadID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started[threadID]
}

// Wait joins the load of threadID, running it if nobody did yet, and returns
// its outcome. Cancelling ctx stops waiting, not the load.
func (p *Preloader) Wait(ctx context.Context, threadID string) error {
	if ok, err := p.outcome(threadID); ok {
		return err
	}
	p.mu.Lock()
	p.started[threadID] = true
	p.mu.Unlock()

	ch := p.group.DoChan(threadID, func() (any, error) {
		if ok, err := p.outcome(threadID); ok {
			return nil, err
		}
		err := p.cache.Load(context.WithoutCancel(ctx), p.url, threadID)
		p.mu.Lock()
		p.settled[threadID] = err
		p.mu.Unlock()
		return nil, err
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (p *Preloader) outcome(threadID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	err, ok := p.settled[threadID]
	return ok, err
}

// Forget drops everything known about threadID. A load still in flight
// keeps running; its result is discarded by the cache's thread check.
func (p *Preloader) Forget(threadID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.started, threadID)
	delete(p.settled, threadID)
	p.group.Forget(threadID)
}
