package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	"SignalEngine/pkg/logger"
)

// StalePrices exposes the last streamed price even after it expired.
type StalePrices interface {
	Stale(symbol string) (float64, bool)
}

// MarketLoader fetches the ticker and the three candle series a symbol is
// analyzed on. Collaborator failures degrade to synthetic data.
type MarketLoader struct {
	market  domrepo.MarketDataProvider
	prices  StalePrices
	metrics domrepo.Metrics
	lgr     *logger.Logger
	count   int
	timeout time.Duration
	now     func() time.Time
}

func NewMarketLoader(market domrepo.MarketDataProvider, prices StalePrices, metrics domrepo.Metrics, lgr *logger.Logger, count int, timeout time.Duration) *MarketLoader {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if count <= 0 {
		count = 250
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MarketLoader{market: market, prices: prices, metrics: metrics, lgr: lgr, count: count, timeout: timeout, now: time.Now}
}

// Load returns an error only when no price at all is known for the symbol:
// no ticker, no streamed price and no hourly candles.
func (l *MarketLoader) Load(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	start := l.now()
	var snap models.MarketSnapshot
	var wg sync.WaitGroup
	var tickerErr error

	wg.Add(4)
	go func() {
		defer wg.Done()
		snap.Ticker, tickerErr = l.ticker(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		snap.Candles.H4 = l.candles(ctx, symbol, domrepo.TF4h)
	}()
	go func() {
		defer wg.Done()
		snap.Candles.H1 = l.candles(ctx, symbol, domrepo.TF1h)
	}()
	go func() {
		defer wg.Done()
		snap.Candles.M15 = l.candles(ctx, symbol, domrepo.TF15m)
	}()
	wg.Wait()

	l.metrics.RecordLatency("market_load", l.now().Sub(start).Seconds())
	if tickerErr != nil {
		t, ok := lastClose(symbol, snap.Candles.H1)
		if !ok {
			return snap, tickerErr
		}
		l.lgr.Warn("ticker unavailable, using last hourly close",
			logger.String("symbol", symbol),
			logger.Float64("price", t.Price),
			logger.Error(tickerErr),
		)
		snap.Ticker = t
	}
	return snap, nil
}

// lastClose builds a synthetic ticker from the newest hourly candle.
func lastClose(symbol string, h1 []models.Candle) (models.Ticker, bool) {
	if len(h1) == 0 {
		return models.Ticker{}, false
	}
	last := h1[len(h1)-1]
	if last.Close <= 0 {
		return models.Ticker{}, false
	}
	return models.Ticker{Symbol: symbol, Price: last.Close, Synthetic: true, Time: last.Time}, true
}

func (l *MarketLoader) ticker(ctx context.Context, symbol string) (models.Ticker, error) {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	t, err := l.market.GetTicker(cctx, symbol)
	if err == nil && t.Price > 0 {
		if t.Symbol == "" {
			t.Symbol = symbol
		}
		return t, nil
	}
	if err == nil {
		err = fmt.Errorf("non-positive price %v", t.Price)
	}
	l.metrics.RecordError("market_ticker")

	if l.prices != nil {
		if p, ok := l.prices.Stale(symbol); ok && p > 0 {
			l.lgr.Warn("ticker unavailable, using last streamed price",
				logger.String("symbol", symbol),
				logger.Float64("price", p),
				logger.Error(err),
			)
			return models.Ticker{Symbol: symbol, Price: p, Synthetic: true, Time: l.now()}, nil
		}
	}
	return models.Ticker{Symbol: symbol}, fmt.Errorf("ticker %s: %w", symbol, err)
}

func (l *MarketLoader) candles(ctx context.Context, symbol string, tf domrepo.Timeframe) []models.Candle {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	cs, err := l.market.GetCandles(cctx, symbol, tf, l.count)
	if err != nil {
		l.metrics.RecordError("market_candles")
		l.lgr.Warn("candles unavailable",
			logger.String("symbol", symbol),
			logger.String("timeframe", string(tf)),
			logger.Error(err),
		)
		return nil
	}
	return cs
}
