package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
	access   time.Time
}

// MemoryCache implements Service in process. It backs the dedup mirror
// when Redis is disabled and in tests.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	o := memoryOptions{maxSize: 1000, cleanup: 5 * time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: o.maxSize,
		now:     o.now,
		stop:    make(chan struct{}),
	}
	if o.cleanup > 0 {
		go mc.cleanup(o.cleanup)
	}
	return mc
}

// live returns the item if it exists and has not expired. Caller holds mu.
func (mc *MemoryCache) live(key string) (*memoryItem, bool) {
	it, ok := mc.data[key]
	if !ok {
		return nil, false
	}
	if !it.expireAt.IsZero() && mc.now().After(it.expireAt) {
		delete(mc.data, key)
		return nil, false
	}
	it.access = mc.now()
	return it, true
}

func (mc *MemoryCache) put(key string, data []byte, expiration time.Duration) {
	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	var exp time.Time
	if expiration > 0 {
		exp = mc.now().Add(expiration)
	}
	mc.data[key] = &memoryItem{data: data, expireAt: exp, access: mc.now()}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.put(key, data, expiration)
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	it, ok := mc.live(key)
	var data []byte
	if ok {
		data = it.data
	}
	mc.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.data, k)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if _, ok := mc.live(k); ok {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) Count(_ context.Context, key string, ttl time.Duration) (int64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	it, ok := mc.live(key)
	if !ok {
		mc.put(key, []byte("1"), ttl)
		return 1, nil
	}
	n, err := strconv.ParseInt(string(it.data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", key, err)
	}
	n++
	it.data = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (mc *MemoryCache) evictLRU() {
	var oldest string
	var at time.Time
	for k, it := range mc.data {
		if oldest == "" || it.access.Before(at) {
			oldest, at = k, it.access
		}
	}
	if oldest != "" {
		delete(mc.data, oldest)
	}
}

func (mc *MemoryCache) cleanup(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-t.C:
			mc.mu.Lock()
			now := mc.now()
			for k, it := range mc.data {
				if !it.expireAt.IsZero() && now.After(it.expireAt) {
					delete(mc.data, k)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.stop) })
	return nil
}

var _ Service = (*MemoryCache)(nil)
