package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
)

type stubMarket struct {
	price float64
	err   error
	calls int
}

func (s *stubMarket) GetTicker(context.Context, string) (models.Ticker, error) {
	s.calls++
	return models.Ticker{Price: s.price}, s.err
}

func (s *stubMarket) GetCandles(context.Context, string, domrepo.Timeframe, int) ([]models.Candle, error) {
	return nil, nil
}

func TestPriceCachePrefersStream(t *testing.T) {
	m := &stubMarket{price: 99}
	pc := NewPriceCache(time.Minute, m)
	pc.Update(&models.Tick{Symbol: "BTCUSDT", Price: 101})
	got, err := pc.LastPrice(context.Background(), "BTCUSDT")
	if err != nil || got != 101 {
		t.Fatalf("LastPrice() = %v, %v", got, err)
	}
	if m.calls != 0 {
		t.Fatalf("REST called despite fresh tick")
	}
}

func TestPriceCacheFallsBackToTicker(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &stubMarket{price: 99}
	pc := NewPriceCache(time.Second, m)
	pc.prices.WithClock(func() time.Time { return now })
	pc.Update(&models.Tick{Symbol: "BTCUSDT", Price: 101})
	now = now.Add(2 * time.Second)

	got, err := pc.LastPrice(context.Background(), "BTCUSDT")
	if err != nil || got != 99 || m.calls != 1 {
		t.Fatalf("LastPrice() = %v, %v (calls %d)", got, err, m.calls)
	}

	m.err = errors.New("down")
	now = now.Add(2 * time.Second)
	if _, err := pc.LastPrice(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected error when stream stale and REST down")
	}
	if v, ok := pc.Stale("BTCUSDT"); !ok || v != 99 {
		t.Fatalf("Stale() = %v, %v", v, ok)
	}
}
