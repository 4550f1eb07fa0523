package backend

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

const maxIdempotencyKeys = 1024

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

type idempotencyEntry struct {
	done chan struct{}
	id   string
}

// idempotencyCache remembers the session id issued for recent keys, evicting
// the oldest completed key once full. A key is reserved for the whole save,
// so concurrent requests carrying it wait for the first one.
type idempotencyCache struct {
	mu      sync.Mutex
	entries map[string]*idempotencyEntry
	order   []string
}

func newIdempotencyCache() *idempotencyCache {
	return &idempotencyCache{entries: map[string]*idempotencyEntry{}}
}

// acquire returns the id saved under key, or owner=true when the caller has
// reserved key and must call release.
func (c *idempotencyCache) acquire(ctx context.Context, key string) (id string, owner bool, err error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok {
			c.entries[key] = &idempotencyEntry{done: make(chan struct{})}
			c.mu.Unlock()
			return "", true, nil
		}
		c.mu.Unlock()

		select {
		case <-e.done:
			if e.id != "" {
				return e.id, false, nil
			}
			// the owner failed and dropped the reservation; try to take it
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

// release completes the reservation for key. An empty id drops the key so a
// later retry can save again.
func (c *idempotencyCache) release(key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	e.id = id
	close(e.done)
	if id == "" {
		delete(c.entries, key)
		return
	}
	c.order = append(c.order, key)
	if len(c.order) > maxIdempotencyKeys {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}
