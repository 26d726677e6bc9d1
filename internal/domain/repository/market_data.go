package repository

import (
	"context"

	"SignalEngine/internal/domain/models"
)

// MarketDataProvider serves 24h stats and candles. Both calls may fail; the
// caller falls back to synthetic data.
type MarketDataProvider interface {
	GetTicker(ctx context.Context, symbol string) (models.Ticker, error)
	// GetCandles returns bars oldest first.
	GetCandles(ctx context.Context, symbol string, tf Timeframe, count int) ([]models.Candle, error)
}

// PriceSource returns the latest known price for a symbol.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}
