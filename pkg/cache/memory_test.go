package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheExpiryAndCounters(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	type snap struct {
		Symbol string `json:"symbol"`
	}
	if err := mc.Set(ctx, Key("lock", "BTCUSDT"), snap{Symbol: "BTCUSDT"}, time.Minute); err != nil {
		t.Fatalf("Set() err = %v", err)
	}
	var got snap
	if err := mc.Get(ctx, "lock:BTCUSDT", &got); err != nil || got.Symbol != "BTCUSDT" {
		t.Fatalf("Get() = %+v, %v", got, err)
	}

	for i := int64(1); i <= 3; i++ {
		if n, err := mc.Count(ctx, "daily", time.Hour); err != nil || n != i {
			t.Fatalf("Count() = %d, %v; want %d", n, err, i)
		}
	}

	now = now.Add(2 * time.Minute)
	if err := mc.Get(ctx, "lock:BTCUSDT", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired key: err = %v, want ErrCacheMiss", err)
	}
	if ok, _ := mc.Exists(ctx, "daily"); !ok {
		t.Fatalf("daily counter should still exist")
	}

	// Later increments must not push the expiry out.
	now = now.Add(59 * time.Minute)
	if ok, _ := mc.Exists(ctx, "daily"); ok {
		t.Fatalf("daily counter should expire an hour after the first count")
	}
	if n, _ := mc.Count(ctx, "daily", time.Hour); n != 1 {
		t.Fatalf("Count() after expiry = %d, want 1", n)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxSize(2), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", 0)
	now = now.Add(time.Second)
	_ = mc.Set(ctx, "b", "2", 0)
	now = now.Add(time.Second)
	var s string
	_ = mc.Get(ctx, "a", &s)
	now = now.Add(time.Second)
	_ = mc.Set(ctx, "c", "3", 0)

	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if ok, _ := mc.Exists(ctx, "a", "c"); !ok {
		t.Fatalf("a and c should remain")
	}
}
