// Package stats provides the per-run counter service shared by every
// pipeline stage.
package stats

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter is a concurrency-safe map of named event counts. Keys are free-form
// slash-separated names such as "warc/response" or "error/json/decode_error".
// A nil *Counter discards all increments.
type Counter struct {
	mu     sync.RWMutex
	counts map[string]*atomic.Int64
	parent *Counter
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]*atomic.Int64)}
}

// Child creates a counter whose increments are also applied to c. A job uses
// this to keep per-archive counts while exposing a live aggregate.
func (c *Counter) Child() *Counter {
	child := NewCounter()
	child.parent = c
	return child
}

type ctxKey struct{}

// NewContext returns a copy of ctx that carries c.
func NewContext(ctx context.Context, c *Counter) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the counter carried by ctx, or nil.
func FromContext(ctx context.Context) *Counter {
	c, _ := ctx.Value(ctxKey{}).(*Counter)
	return c
}

func (c *Counter) slot(key string) *atomic.Int64 {
	c.mu.RLock()
	v, ok := c.counts[key]
	c.mu.RUnlock()
	if ok {
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok = c.counts[key]; ok {
		return v
	}
	v = new(atomic.Int64)
	c.counts[key] = v
	return v
}

// Inc adds one to key.
func (c *Counter) Inc(key string) {
	c.Add(key, 1)
}

// Add adds n to key. Negative deltas are ignored so counts stay monotonic.
func (c *Counter) Add(key string, n int64) {
	if c == nil || n < 0 {
		return
	}
	c.slot(key).Add(n)
	if c.parent != nil {
		c.parent.Add(key, n)
	}
}

// Get returns the current count for key.
func (c *Counter) Get(key string) int64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.counts[key]; ok {
		return v.Load()
	}
	return 0
}

// Snapshot returns a copy of all counts.
func (c *Counter) Snapshot() map[string]int64 {
	return c.Filter("")
}

// Filter returns the counts whose key starts with prefix.
func (c *Counter) Filter(prefix string) map[string]int64 {
	out := make(map[string]int64)
	if c == nil {
		return out
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.counts {
		if strings.HasPrefix(k, prefix) {
			out[k] = v.Load()
		}
	}
	return out
}

// SumPrefix returns the sum of all counts whose key starts with prefix.
func (c *Counter) SumPrefix(prefix string) int64 {
	var total int64
	for _, v := range c.Filter(prefix) {
		total += v
	}
	return total
}

// Keys returns the known keys in sorted order.
func (c *Counter) Keys() []string {
	return slices.Sorted(maps.Keys(c.Snapshot()))
}

// Merge adds every count in snapshot to c.
func (c *Counter) Merge(snapshot map[string]int64) {
	for k, v := range snapshot {
		c.Add(k, v)
	}
}
