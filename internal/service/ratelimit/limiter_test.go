package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New().WithClock(func() time.Time { return now })

	if !l.Allow("gpt", 2, 1) || !l.Allow("gpt", 2, 1) {
		t.Fatalf("burst of 2 should pass")
	}
	if l.Allow("gpt", 2, 1) {
		t.Fatalf("third call should be limited")
	}
	if !l.Allow("claude", 2, 1) {
		t.Fatalf("keys must be independent")
	}
	now = now.Add(time.Second)
	if !l.Allow("gpt", 2, 1) {
		t.Fatalf("token should refill after 1s")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New().WithClock(func() time.Time { return now })
	l.Allow("gpt", 1, 0.001)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "gpt", 1, 0.001); err == nil {
		t.Fatalf("Wait() should fail when the deadline passes first")
	}
}
