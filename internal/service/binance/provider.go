package binance

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
)

// Provider serves tickers and klines from the USDT-M futures REST API.
type Provider struct {
	client  *futures.Client
	timeout time.Duration
}

type Option func(*Provider)

// WithBaseURL points the client at another host (testnet mirror, tests).
func WithBaseURL(u string) Option { return func(p *Provider) { p.client.BaseURL = u } }

func WithTimeout(d time.Duration) Option { return func(p *Provider) { p.timeout = d } }

func NewProvider(apiKey, secretKey string, testnet bool, opts ...Option) *Provider {
	if testnet {
		futures.UseTestnet = true
	}
	p := &Provider{client: gobinance.NewFuturesClient(apiKey, secretKey), timeout: 10 * time.Second}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) GetTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	stats, err := p.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.Ticker{}, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	for _, s := range stats {
		if s == nil || s.Symbol != symbol {
			continue
		}
		t := models.Ticker{
			Symbol:    symbol,
			Price:     parse(s.LastPrice),
			Change24h: parse(s.PriceChangePercent),
			Volume24h: parse(s.Volume),
			High24h:   parse(s.HighPrice),
			Low24h:    parse(s.LowPrice),
			Count:     s.Count,
			Time:      time.UnixMilli(s.CloseTime),
		}
		if t.Price <= 0 {
			return models.Ticker{}, fmt.Errorf("ticker %s: invalid last price %q", symbol, s.LastPrice)
		}
		return t, nil
	}
	return models.Ticker{}, fmt.Errorf("ticker %s: not found", symbol)
}

func (p *Provider) GetCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("candles %s: unsupported timeframe %q", symbol, tf)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	klines, err := p.client.NewKlinesService().Symbol(symbol).Interval(string(tf)).Limit(count).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("candles %s %s: %w", symbol, tf, err)
	}
	out := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		out = append(out, models.Candle{
			Time:   time.UnixMilli(k.OpenTime),
			Open:   parse(k.Open),
			High:   parse(k.High),
			Low:    parse(k.Low),
			Close:  parse(k.Close),
			Volume: parse(k.Volume),
		})
	}
	return out, nil
}

// parse returns NaN for malformed numbers so Candle.Valid drops the bar.
func parse(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

var _ domrepo.MarketDataProvider = (*Provider)(nil)
