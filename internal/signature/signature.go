// Package signature implements C4: a session-scoped, TTL-bound cache of
// Gemini thought signatures keyed by (family, sessionId, textKey).
package signature

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// TTL is how long an entry survives after insertion (not after last read).
const TTL = 30 * time.Minute

// SweepInterval is how often the background sweeper evicts expired entries.
const SweepInterval = 5 * time.Minute

// SentinelSkipValidation is attached to functionCall parts that lack a
// cached signature, in lieu of a real one.
const SentinelSkipValidation = "skip_thought_signature_validator"

type key struct {
	family    string
	sessionID string
	textKey   string
}

type value struct {
	signature  string
	insertedAt time.Time
}

// Cache is the concurrency-safe signature store. Construct with NewCache and
// call Run in a managed goroutine to enable periodic sweeping; Cache is
// still safe to use without Run, it just won't proactively evict.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]value
}

// NewCache constructs an empty signature cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[key]value)}
}

// TextKey builds the textKey component from a thought's text: the first 100
// characters concatenated with "::" and the text's full length.
func TextKey(text string) string {
	runes := []rune(text)
	n := len(runes)
	prefix := runes
	if n > 100 {
		prefix = runes[:100]
	}
	return string(prefix) + "::" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Put stores signature for the given (family, sessionId, textKey) with the
// current time as insertedAt.
func (c *Cache) Put(family, sessionID, textKey, sig string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{family, sessionID, textKey}] = value{signature: sig, insertedAt: time.Now()}
}

// Get returns the cached signature and whether it was present and not yet
// expired. An expired-but-still-resident entry is evicted as a side effect.
func (c *Cache) Get(family, sessionID, textKey string) (string, bool) {
	k := key{family, sessionID, textKey}
	c.mu.RLock()
	v, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Since(v.insertedAt) > TTL {
		c.mu.Lock()
		delete(c.entries, k)
		c.mu.Unlock()
		return "", false
	}
	return v.signature, true
}

// sweep removes every entry older than TTL, regardless of whether it has
// been read since insertion.
func (c *Cache) sweep() {
	cutoff := time.Now().Add(-TTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.entries {
		if v.insertedAt.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// Run sweeps the cache every SweepInterval until ctx is cancelled. Intended
// to be launched via an errgroup alongside the rest of the process's
// background workers so shutdown cancels them together.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweep()
		}
	}
}

// StartSweeper launches Run under the given errgroup; callers wait on that
// group at shutdown. It is the only background sweeper in this process.
func StartSweeper(ctx context.Context, g *errgroup.Group, c *Cache) {
	g.Go(func() error { return c.Run(ctx) })
}
