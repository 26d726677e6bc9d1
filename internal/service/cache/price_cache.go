package cache

import (
	"context"
	"fmt"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
)

// PriceCache holds the latest streamed price per symbol. Stale or missing
// prices are refreshed from the REST ticker.
type PriceCache struct {
	prices *TTLCache[float64]
	ttl    time.Duration
	market domrepo.MarketDataProvider
}

func NewPriceCache(ttl time.Duration, market domrepo.MarketDataProvider) *PriceCache {
	return &PriceCache{prices: NewTTLCache[float64](), ttl: ttl, market: market}
}

// Update stores a tick.
func (p *PriceCache) Update(t *models.Tick) {
	if t == nil || t.Price <= 0 {
		return
	}
	p.prices.Set(t.Symbol, t.Price, p.ttl)
}

// Process lets the cache sit at the end of the tick pipeline.
func (p *PriceCache) Process(_ context.Context, t *models.Tick) error {
	p.Update(t)
	return nil
}

// LastPrice returns the cached price or asks the market provider.
func (p *PriceCache) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if v, ok := p.prices.Get(symbol); ok {
		return v, nil
	}
	if p.market == nil {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	t, err := p.market.GetTicker(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	p.prices.Set(symbol, t.Price, p.ttl)
	return t.Price, nil
}

// Stale returns the last price seen even if expired.
func (p *PriceCache) Stale(symbol string) (float64, bool) {
	v, ok, _ := p.prices.Peek(symbol)
	return v, ok
}

var _ domrepo.PriceSource = (*PriceCache)(nil)
