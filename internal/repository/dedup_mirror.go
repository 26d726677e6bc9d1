package repository

import (
	"context"
	"fmt"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	pkgcache "SignalEngine/pkg/cache"
)

// CacheDedupMirror writes guard registrations to a shared cache:
//
//	dedup:lock:<symbol>          snapshot of the locking signal, TTL = lock TTL
//	dedup:daily:<symbol>:<date>  counter, TTL = daily retention
//
// The in-memory guard stays authoritative; this is for other instances
// and operators.
type CacheDedupMirror struct {
	cache pkgcache.Service
}

func NewCacheDedupMirror(c pkgcache.Service) *CacheDedupMirror {
	return &CacheDedupMirror{cache: c}
}

func LockKey(symbol string) string { return pkgcache.Key("dedup", "lock", symbol) }

func DailyKey(symbol, day string) string { return pkgcache.Key("dedup", "daily", symbol, day) }

func (m *CacheDedupMirror) MirrorRegistration(ctx context.Context, s *models.Signal, lockTTL time.Duration, dailyKey string, dailyTTL time.Duration) error {
	if s == nil {
		return nil
	}
	lock := models.SignalLock{Symbol: s.Symbol, CreatedAt: s.CreatedAt, TTL: lockTTL, Signal: *s}
	if err := m.cache.Set(ctx, LockKey(s.Symbol), lock, lockTTL); err != nil {
		return fmt.Errorf("mirror lock %s: %w", s.Symbol, err)
	}
	key := DailyKey(s.Symbol, dailyKey)
	if _, err := m.cache.Count(ctx, key, dailyTTL); err != nil {
		return fmt.Errorf("mirror daily %s: %w", key, err)
	}
	return nil
}

// Lock reads back a mirrored lock.
func (m *CacheDedupMirror) Lock(ctx context.Context, symbol string) (*models.SignalLock, error) {
	var l models.SignalLock
	if err := m.cache.Get(ctx, LockKey(symbol), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

var _ domrepo.DedupMirror = (*CacheDedupMirror)(nil)
