package usecase

import (
	"errors"
	"sort"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
)

var (
	ErrSignalNotFound   = errors.New("signal not found")
	ErrSignalNotPending = errors.New("signal not pending")
)

// SignalBook keeps recently emitted signals so execution reports and the
// status API can find them. It owns every status change after assembly.
type SignalBook struct {
	mu        sync.RWMutex
	signals   map[string]*models.Signal
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewSignalBook expires unfilled signals after ttl and forgets any signal
// after retention.
func NewSignalBook(ttl, retention time.Duration) *SignalBook {
	if retention < ttl {
		retention = ttl
	}
	return &SignalBook{signals: make(map[string]*models.Signal), ttl: ttl, retention: retention, now: time.Now}
}

// WithClock replaces the time source.
func (b *SignalBook) WithClock(now func() time.Time) *SignalBook {
	b.now = now
	return b
}

// Add stores copies of the signals.
func (b *SignalBook) Add(signals ...*models.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range signals {
		if s == nil {
			continue
		}
		cp := *s
		b.signals[s.ID] = &cp
	}
}

func (b *SignalBook) Get(id string) (models.Signal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.signals[id]
	if !ok {
		return models.Signal{}, false
	}
	return *s, true
}

// MarkExecuted moves a GENERATED signal to EXECUTED and returns a copy.
func (b *SignalBook) MarkExecuted(id string) (models.Signal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.signals[id]
	if !ok {
		return models.Signal{}, ErrSignalNotFound
	}
	if s.Expire(b.now(), b.ttl) || s.Status != models.SignalGenerated {
		return *s, ErrSignalNotPending
	}
	s.Status = models.SignalExecuted
	return *s, nil
}

// Unmark moves an EXECUTED signal back to GENERATED when no position could
// be opened for it.
func (b *SignalBook) Unmark(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.signals[id]; ok && s.Status == models.SignalExecuted {
		s.Status = models.SignalGenerated
	}
}

// Expire marks stale GENERATED signals EXPIRED and drops entries past
// retention. It returns the signals that expired on this call.
func (b *SignalBook) Expire() []models.Signal {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Signal
	for id, s := range b.signals {
		if s.Expire(now, b.ttl) {
			out = append(out, *s)
		}
		if now.Sub(s.CreatedAt) > b.retention {
			delete(b.signals, id)
		}
	}
	return out
}

// List returns signals newest first. Empty filters match everything.
func (b *SignalBook) List(symbol string, status models.SignalStatus, limit int) []models.Signal {
	b.mu.RLock()
	out := make([]models.Signal, 0, len(b.signals))
	for _, s := range b.signals {
		if symbol != "" && s.Symbol != symbol {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, *s)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (b *SignalBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.signals)
}
