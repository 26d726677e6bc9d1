// Package dedup keeps per-symbol locks, recent history and daily counters so
// the assembler can reject spammy or repeated candidates.
package dedup

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	"SignalEngine/pkg/logger"
)

const dayLayout = "2006-01-02"

// Rejection reasons returned by Admit.
const (
	ReasonTooSoon    = "too soon after previous signal"
	ReasonLocked     = "symbol locked by active signal"
	ReasonDuplicate  = "duplicate of recent signal"
	ReasonDailyCap   = "daily signal cap reached"
	ReasonInvalidSig = "invalid signal"
)

type Config struct {
	LockTTL          time.Duration
	DuplicateWindow  time.Duration
	DuplicatePercent float64
	MinGap           time.Duration
	DailyCap         int
	HistorySize      int
	HistoryRetention time.Duration
	DailyRetention   time.Duration
	// Location decides where a calendar day starts. Defaults to time.Local.
	Location *time.Location
}

func DefaultConfig() Config {
	return Config{
		LockTTL:          30 * time.Minute,
		DuplicateWindow:  30 * time.Minute,
		DuplicatePercent: 2,
		MinGap:           5 * time.Minute,
		DailyCap:         6,
		HistorySize:      10,
		HistoryRetention: 24 * time.Hour,
		DailyRetention:   7 * 24 * time.Hour,
		Location:         time.Local,
	}
}

type Option func(*Store)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMirror copies registrations to shared storage.
func WithMirror(m domrepo.DedupMirror) Option {
	return func(s *Store) { s.mirror = m }
}

func WithLogger(lgr *logger.Logger) Option {
	return func(s *Store) { s.lgr = lgr }
}

type entry struct {
	at    time.Time
	dir   models.Direction
	price float64
}

// symbolState is guarded by its own mutex so symbols never contend.
type symbolState struct {
	mu     sync.Mutex
	lock   *models.SignalLock
	recent []entry
	daily  map[string]int
	last   time.Time
}

// Store never registers anything on query. Callers either Register after
// their own checks or use Admit, which checks and registers atomically.
type Store struct {
	cfg    Config
	now    func() time.Time
	mirror domrepo.DedupMirror
	lgr    *logger.Logger

	mu      sync.RWMutex
	symbols map[string]*symbolState
}

func NewStore(cfg Config, opts ...Option) *Store {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Store{
		cfg:     cfg,
		now:     time.Now,
		lgr:     logger.Nop(),
		symbols: make(map[string]*symbolState),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) state(symbol string) *symbolState {
	s.mu.RLock()
	st, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return st
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.symbols[symbol]; !ok {
		st = &symbolState{daily: make(map[string]int)}
		s.symbols[symbol] = st
	}
	return st
}

// DailyKey is the calendar day of t in the configured location.
func (s *Store) DailyKey(t time.Time) string {
	return t.In(s.cfg.Location).Format(dayLayout)
}

func (s *Store) HasActiveLock(symbol string) bool {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.locked(s.now())
}

func (s *Store) IsDuplicate(symbol string, dir models.Direction, price float64) bool {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.duplicate(s.now(), dir, price, s.cfg)
}

func (s *Store) ExceedsDailyCap(symbol string) bool {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.daily[s.DailyKey(s.now())] >= s.cfg.DailyCap
}

func (s *Store) TooSoon(symbol string) bool {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.tooSoon(s.now(), s.cfg.MinGap)
}

func (st *symbolState) locked(now time.Time) bool {
	return st.lock != nil && st.lock.Active(now)
}

func (st *symbolState) tooSoon(now time.Time, gap time.Duration) bool {
	return !st.last.IsZero() && now.Sub(st.last) < gap
}

func (st *symbolState) duplicate(now time.Time, dir models.Direction, price float64, cfg Config) bool {
	for _, e := range st.recent {
		if e.dir != dir || now.Sub(e.at) >= cfg.DuplicateWindow || e.price <= 0 {
			continue
		}
		if math.Abs(price-e.price)/e.price*100 < cfg.DuplicatePercent {
			return true
		}
	}
	return false
}

// Register records an accepted signal: lock, history and daily counter.
func (s *Store) Register(ctx context.Context, sig *models.Signal) {
	st := s.state(sig.Symbol)
	now := s.now()
	st.mu.Lock()
	st.register(now, sig, s.cfg, s.DailyKey(now))
	st.mu.Unlock()
	s.mirrorRegistration(ctx, sig, now)
}

// Admit runs every guard check and registers the signal only if all pass.
// The returned reason is empty on acceptance.
func (s *Store) Admit(ctx context.Context, sig *models.Signal) (string, bool) {
	if sig == nil || sig.Symbol == "" {
		return ReasonInvalidSig, false
	}
	st := s.state(sig.Symbol)
	now := s.now()
	key := s.DailyKey(now)

	st.mu.Lock()
	var reason string
	switch {
	case st.tooSoon(now, s.cfg.MinGap):
		reason = ReasonTooSoon
	case st.locked(now):
		reason = ReasonLocked
	case st.duplicate(now, sig.Direction, sig.EntryPrice, s.cfg):
		reason = ReasonDuplicate
	case st.daily[key] >= s.cfg.DailyCap:
		reason = fmt.Sprintf("%s (%d)", ReasonDailyCap, s.cfg.DailyCap)
	default:
		st.register(now, sig, s.cfg, key)
	}
	st.mu.Unlock()

	if reason != "" {
		return reason, false
	}
	s.mirrorRegistration(ctx, sig, now)
	return "", true
}

func (st *symbolState) register(now time.Time, sig *models.Signal, cfg Config, key string) {
	st.lock = &models.SignalLock{Symbol: sig.Symbol, CreatedAt: now, TTL: cfg.LockTTL, Signal: *sig}
	st.recent = append(st.recent, entry{at: now, dir: sig.Direction, price: sig.EntryPrice})
	st.daily[key]++
	st.last = now
	st.pruneHistory(now, cfg)
}

func (st *symbolState) pruneHistory(now time.Time, cfg Config) {
	kept := st.recent[:0]
	for _, e := range st.recent {
		if now.Sub(e.at) <= cfg.HistoryRetention {
			kept = append(kept, e)
		}
	}
	if cfg.HistorySize > 0 && len(kept) > cfg.HistorySize {
		kept = kept[len(kept)-cfg.HistorySize:]
	}
	st.recent = kept
}

func (s *Store) mirrorRegistration(ctx context.Context, sig *models.Signal, now time.Time) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.MirrorRegistration(ctx, sig, s.cfg.LockTTL, s.DailyKey(now), s.cfg.DailyRetention); err != nil {
		s.lgr.Warn("dedup mirror failed",
			logger.String("symbol", sig.Symbol),
			logger.Error(err),
		)
	}
}

// ReleaseLock drops the lock early, e.g. once the signal expired unfilled.
func (s *Store) ReleaseLock(symbol string) {
	st := s.state(symbol)
	st.mu.Lock()
	st.lock = nil
	st.mu.Unlock()
}

// Prune drops expired locks, stale history and old daily counters.
func (s *Store) Prune() {
	now := s.now()
	s.mu.RLock()
	states := make([]*symbolState, 0, len(s.symbols))
	for _, st := range s.symbols {
		states = append(states, st)
	}
	s.mu.RUnlock()

	for _, st := range states {
		st.mu.Lock()
		if st.lock != nil && !st.lock.Active(now) {
			st.lock = nil
		}
		st.pruneHistory(now, s.cfg)
		for day := range st.daily {
			d, err := time.ParseInLocation(dayLayout, day, s.cfg.Location)
			if err != nil || now.Sub(d) > s.cfg.DailyRetention {
				delete(st.daily, day)
			}
		}
		st.mu.Unlock()
	}
}

// Snapshot returns a copy of a symbol's guard state.
func (s *Store) Snapshot(symbol string) models.DedupSnapshot {
	st := s.state(symbol)
	now := s.now()
	key := s.DailyKey(now)

	st.mu.Lock()
	defer st.mu.Unlock()
	snap := models.DedupSnapshot{Symbol: symbol, DailyKey: key, DailyCount: st.daily[key]}
	if st.locked(now) {
		l := *st.lock
		snap.Lock = &l
	}
	for _, e := range st.recent {
		snap.Recent = append(snap.Recent, models.RecentSignal{Time: e.at, Direction: e.dir, EntryPrice: e.price})
	}
	sort.Slice(snap.Recent, func(i, j int) bool { return snap.Recent[i].Time.After(snap.Recent[j].Time) })
	return snap
}

// Symbols lists every symbol the store has seen.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for k := range s.symbols {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
