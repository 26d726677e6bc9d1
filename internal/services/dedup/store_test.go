package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalEngine/internal/domain/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(c *clock, mutate func(*Config)) *Store {
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	cfg.MinGap = 0
	if mutate != nil {
		mutate(&cfg)
	}
	return NewStore(cfg, WithClock(c.now))
}

func sig(symbol string, dir models.Direction, price float64) *models.Signal {
	return &models.Signal{ID: symbol + "-1", Symbol: symbol, Direction: dir, EntryPrice: price}
}

func TestDuplicateWithinWindow(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(c, nil)
	ctx := context.Background()

	s.Register(ctx, sig("BTC", models.DirectionLong, 50000))
	c.advance(10 * time.Minute)
	if !s.IsDuplicate("BTC", models.DirectionLong, 50500) {
		t.Fatalf("1%% move inside window should be duplicate")
	}
	if s.IsDuplicate("BTC", models.DirectionShort, 50500) {
		t.Fatalf("opposite direction is not a duplicate")
	}
	if s.IsDuplicate("BTC", models.DirectionLong, 52000) {
		t.Fatalf("4%% move is not a duplicate")
	}
	c.advance(21 * time.Minute)
	if s.IsDuplicate("BTC", models.DirectionLong, 50500) {
		t.Fatalf("duplicate window should have elapsed")
	}
}

func TestAdmitDuplicateThenAccepted(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(c, func(cfg *Config) { cfg.LockTTL = 10 * time.Minute })
	ctx := context.Background()

	if _, ok := s.Admit(ctx, sig("BTC", models.DirectionLong, 50000)); !ok {
		t.Fatalf("first signal rejected")
	}
	c.advance(15 * time.Minute)
	reason, ok := s.Admit(ctx, sig("BTC", models.DirectionLong, 50500))
	if ok || reason != ReasonDuplicate {
		t.Fatalf("Admit() = %q, %v; want duplicate", reason, ok)
	}
	c.advance(16 * time.Minute)
	if reason, ok := s.Admit(ctx, sig("BTC", models.DirectionLong, 50500)); !ok {
		t.Fatalf("signal after window rejected: %s", reason)
	}
}

func TestQueriesDoNotRegister(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(c, nil)
	for i := 0; i < 3; i++ {
		s.HasActiveLock("ETH")
		s.IsDuplicate("ETH", models.DirectionLong, 3000)
		s.ExceedsDailyCap("ETH")
		s.TooSoon("ETH")
	}
	snap := s.Snapshot("ETH")
	if snap.Lock != nil || len(snap.Recent) != 0 || snap.DailyCount != 0 {
		t.Fatalf("queries mutated state: %+v", snap)
	}
}

func TestLockExpires(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(c, nil)
	s.Register(context.Background(), sig("SOL", models.DirectionShort, 100))
	if !s.HasActiveLock("SOL") {
		t.Fatalf("lock missing after register")
	}
	c.advance(29 * time.Minute)
	if !s.HasActiveLock("SOL") {
		t.Fatalf("lock expired early")
	}
	c.advance(time.Minute)
	if s.HasActiveLock("SOL") {
		t.Fatalf("lock still active at ttl")
	}
}

func TestTooSoon(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(c, func(cfg *Config) { cfg.MinGap = 5 * time.Minute })
	if s.TooSoon("BNB") {
		t.Fatalf("no prior signal, not too soon")
	}
	s.Register(context.Background(), sig("BNB", models.DirectionLong, 300))
	c.advance(4 * time.Minute)
	if !s.TooSoon("BNB") {
		t.Fatalf("expected too soon")
	}
	c.advance(time.Minute)
	if s.TooSoon("BNB") {
		t.Fatalf("gap elapsed")
	}
}

func TestDailyCapResetsNextDay(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(c, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if reason, ok := s.Admit(ctx, sig("XRP", models.DirectionLong, 1)); !ok {
			t.Fatalf("signal %d rejected: %s", i+1, reason)
		}
		c.advance(31 * time.Minute)
	}
	if !s.ExceedsDailyCap("XRP") {
		t.Fatalf("cap not reached after 6 signals")
	}
	if _, ok := s.Admit(ctx, sig("XRP", models.DirectionLong, 1)); ok {
		t.Fatalf("7th signal accepted on the same day")
	}

	c.t = time.Date(2024, 3, 2, 0, 5, 0, 0, time.UTC)
	if s.ExceedsDailyCap("XRP") {
		t.Fatalf("counter should start at zero on a new day")
	}
	if snap := s.Snapshot("XRP"); snap.DailyCount != 0 || snap.DailyKey != "2024-03-02" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if reason, ok := s.Admit(ctx, sig("XRP", models.DirectionLong, 1)); !ok {
		t.Fatalf("first signal of new day rejected: %s", reason)
	}
}

func TestDailyKeyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	s := NewStore(Config{Location: loc})
	at := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	if got := s.DailyKey(at); got != "2024-03-02" {
		t.Fatalf("DailyKey() = %s, want local date 2024-03-02", got)
	}
}

func TestHistoryBoundedAndPruned(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(c, nil)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		s.Register(ctx, sig("ADA", models.DirectionLong, float64(i+1)))
		c.advance(time.Minute)
	}
	if n := len(s.Snapshot("ADA").Recent); n != 10 {
		t.Fatalf("history length = %d, want 10", n)
	}
	c.advance(25 * time.Hour)
	s.Prune()
	snap := s.Snapshot("ADA")
	if len(snap.Recent) != 0 || snap.Lock != nil {
		t.Fatalf("prune left %+v", snap)
	}
	c.advance(7 * 24 * time.Hour)
	s.Prune()
	st := s.state("ADA")
	if len(st.daily) != 0 {
		t.Fatalf("daily counters not pruned: %v", st.daily)
	}
}

func TestAdmitIsAtomicPerSymbol(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(c, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := s.Admit(ctx, sig("DOGE", models.DirectionLong, float64(100+i*10))); ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if accepted != 1 {
		t.Fatalf("accepted %d signals concurrently, want 1", accepted)
	}
}

type failingMirror struct{ calls int }

func (m *failingMirror) MirrorRegistration(context.Context, *models.Signal, time.Duration, string, time.Duration) error {
	m.calls++
	return errors.New("redis down")
}

func TestMirrorFailureDoesNotBlock(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := &failingMirror{}
	cfg := DefaultConfig()
	s := NewStore(cfg, WithClock(c.now), WithMirror(m))
	if _, ok := s.Admit(context.Background(), sig("BTC", models.DirectionLong, 1)); !ok {
		t.Fatalf("mirror failure rejected the signal")
	}
	if m.calls != 1 || !s.HasActiveLock("BTC") {
		t.Fatalf("mirror calls = %d, lock = %v", m.calls, s.HasActiveLock("BTC"))
	}
}
