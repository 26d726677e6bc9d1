package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	v   V
	exp time.Time
}

// TTLCache is an in-memory map whose entries expire lazily on read.
type TTLCache[V any] struct {
	mu  sync.RWMutex
	m   map[string]entry[V]
	now func() time.Time
}

func NewTTLCache[V any]() *TTLCache[V] {
	return &TTLCache[V]{m: make(map[string]entry[V]), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.now = now
	return c
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.v, true
}

// Peek returns the value even if it expired, plus whether it is still fresh.
func (c *TTLCache[V]) Peek(key string) (V, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	if !ok {
		var zero V
		return zero, false, false
	}
	fresh := e.exp.IsZero() || !c.now().After(e.exp)
	return e.v, true, fresh
}

func (c *TTLCache[V]) Set(key string, v V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = entry[V]{v: v, exp: exp}
	c.mu.Unlock()
}

// Keys returns every key currently held, fresh or not.
func (c *TTLCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.m))
	for k := range c.m {
		out = append(out, k)
	}
	return out
}

// Bytes adapts a byte cache to BytesCache.
type Bytes struct{ *TTLCache[[]byte] }

func NewBytes() Bytes { return Bytes{NewTTLCache[[]byte]()} }

func (b Bytes) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := b.Get(key)
	return v, ok, nil
}

func (b Bytes) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.Set(key, value, ttl)
	return nil
}
