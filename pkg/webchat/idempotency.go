package webchat

import (
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

func idempotencyKeyFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	}
	return key
}

type cachedReply struct {
	ThreadID string
	Message  string
}

// replyCache remembers completed replies per idempotency key so a retried
// request gets the same answer without running the responder again.
type replyCache struct {
	c *cache.Cache
}

func newReplyCache(ttl time.Duration) *replyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &replyCache{c: cache.New(ttl, 2*ttl)}
}

func (rc *replyCache) get(key string) (cachedReply, bool) {
	if rc == nil || key == "" {
		return cachedReply{}, false
	}
	v, ok := rc.c.Get(key)
	if !ok {
		return cachedReply{}, false
	}
	reply, ok := v.(cachedReply)
	return reply, ok
}

func (rc *replyCache) put(key string, reply cachedReply) {
	if rc == nil || key == "" {
		return
	}
	rc.c.SetDefault(key, reply)
}
