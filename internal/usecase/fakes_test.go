package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/consensus"
	"SignalEngine/internal/services/dedup"
	"SignalEngine/internal/services/exits"
	"SignalEngine/internal/services/technical"
	"SignalEngine/pkg/metrics"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)} }

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeLoader struct {
	snaps map[string]models.MarketSnapshot
}

func (f *fakeLoader) Load(_ context.Context, symbol string) (models.MarketSnapshot, error) {
	s, ok := f.snaps[symbol]
	if !ok {
		return models.MarketSnapshot{}, errors.New("no market data for " + symbol)
	}
	return s, nil
}

type opinionFunc func(in models.AnalysisContext) []models.AIOpinion

func (f opinionFunc) Gather(_ context.Context, in models.AnalysisContext) []models.AIOpinion {
	return f(in)
}

func agree(rec models.Recommendation, conf float64) opinionFunc {
	return func(models.AnalysisContext) []models.AIOpinion {
		return []models.AIOpinion{
			{Source: "alpha", Confidence: conf, Recommendation: rec, RiskLevel: models.RiskMedium, TimeHorizon: models.HorizonShort},
			{Source: "beta", Confidence: conf, Recommendation: rec, RiskLevel: models.RiskMedium, TimeHorizon: models.HorizonShort},
		}
	}
}

// bullTicker estimates to a STRONG long candidate at 90 confidence in a BULL
// regime: EMA cross, MACD and support proximity all vote long.
func bullTicker(symbol string) models.Ticker {
	return models.Ticker{Symbol: symbol, Price: 100, Change24h: 5, High24h: 106, Low24h: 99.5, Volume24h: 1e6}
}

func fallingCandles(n int, start float64) []models.Candle {
	out := make([]models.Candle, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		c := start - float64(i)
		out[i] = models.Candle{Time: t0.Add(time.Duration(i) * 4 * time.Hour), Open: c + 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

type fixture struct {
	clock  *clock
	guard  *dedup.Store
	loader *fakeLoader
	asm    *SignalAssembler
}

func newFixture(t *testing.T, ops OpinionSource, mutate func(*AssemblerConfig)) *fixture {
	t.Helper()
	c := newClock()
	calc, err := exits.NewCalculator(nil, exits.Config{
		Percents:       [3]float64{2.5, 4.5, 7},
		Allocation:     [3]float64{40, 35, 25},
		MinConfidence:  60,
		StaticFallback: true,
	})
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	guard := dedup.NewStore(dedup.DefaultConfig(), dedup.WithClock(c.now))
	engine := consensus.NewEngine(nil, consensus.Weights{
		Sources:   map[string]float64{"alpha": 40, "beta": 35},
		Technical: 25,
	})
	cfg := DefaultAssemblerConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	loader := &fakeLoader{snaps: map[string]models.MarketSnapshot{
		"BTCUSDT": {Ticker: bullTicker("BTCUSDT")},
	}}
	asm := NewSignalAssembler(cfg, loader, technical.NewAnalyzer(nil), ops, engine, calc, guard, metrics.Nop{}, nil,
		WithAssemblerClock(c.now))
	return &fixture{clock: c, guard: guard, loader: loader, asm: asm}
}

type fakePublisher struct {
	mu      sync.Mutex
	signals []*models.Signal
	events  []models.PositionEvent
	err     error
}

func (p *fakePublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	return p.PublishSignals(ctx, []*models.Signal{s})
}

func (p *fakePublisher) PublishSignals(_ context.Context, signals []*models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.signals = append(p.signals, signals...)
	return nil
}

func (p *fakePublisher) PublishEvent(_ context.Context, e models.PositionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeJournal struct {
	mu        sync.Mutex
	signals   []*models.Signal
	positions []models.Position
}

func (j *fakeJournal) Init(context.Context) error { return nil }

func (j *fakeJournal) StoreSignals(_ context.Context, signals []*models.Signal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.signals = append(j.signals, signals...)
	return nil
}

func (j *fakeJournal) StorePosition(_ context.Context, p *models.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.positions = append(j.positions, *p)
	return nil
}

func (j *fakeJournal) QuerySignals(context.Context, string, time.Time, time.Time, int) ([]*models.Signal, error) {
	return nil, nil
}

func (j *fakeJournal) Health(context.Context) error { return nil }
func (j *fakeJournal) Close() error                 { return nil }

type staticPrices map[string]float64

func (s staticPrices) LastPrice(_ context.Context, symbol string) (float64, error) {
	p, ok := s[symbol]
	if !ok {
		return 0, errors.New("no price")
	}
	return p, nil
}
