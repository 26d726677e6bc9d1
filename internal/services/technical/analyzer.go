// Package technical turns candles and 24h stats into indicators and a
// directional candidate.
package technical

import (
	"fmt"
	"math"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/calc"
	"SignalEngine/pkg/logger"
)

// Neutral defaults used when a single indicator cannot be computed.
const (
	NeutralRSI         = 50.0
	NeutralVolumeRatio = 1.0
)

// MinHistory is the number of valid 1h candles below which indicators are
// estimated from the ticker.
const MinHistory = 20

type Option func(*Analyzer)

// WithRegimeMinimums overrides the minimum directional confidence per regime.
func WithRegimeMinimums(m map[models.Regime]float64) Option {
	return func(a *Analyzer) {
		for k, v := range m {
			a.regimeMin[k] = v
		}
	}
}

// WithDefaultMinimum sets the minimum used for regimes without an entry.
func WithDefaultMinimum(v float64) Option {
	return func(a *Analyzer) { a.defaultMin = v }
}

// WithEntryOffset sets the fractional nudge applied to the entry price.
func WithEntryOffset(f float64) Option {
	return func(a *Analyzer) { a.entryOffset = f }
}

type Analyzer struct {
	lgr         *logger.Logger
	regimeMin   map[models.Regime]float64
	defaultMin  float64
	entryOffset float64
}

func NewAnalyzer(lgr *logger.Logger, opts ...Option) *Analyzer {
	if lgr == nil {
		lgr = logger.Nop()
	}
	a := &Analyzer{
		lgr: lgr,
		regimeMin: map[models.Regime]float64{
			models.RegimeSideways: 45,
			models.RegimeBull:     50,
			models.RegimeBear:     65,
		},
		defaultMin:  60,
		entryOffset: 0.001,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// MinimumFor returns the directional confidence needed in a regime.
func (a *Analyzer) MinimumFor(r models.Regime) float64 {
	if v, ok := a.regimeMin[r]; ok {
		return v
	}
	return a.defaultMin
}

// ComputeIndicators never fails. Short history degrades to a ticker-derived
// estimate and each indicator falls back to its neutral value on its own.
func (a *Analyzer) ComputeIndicators(set models.CandleSet, t models.Ticker) models.IndicatorSet {
	h1 := validCandles(set.H1)
	price := t.Price
	if (price <= 0 || !calc.IsFinite(price)) && len(h1) > 0 {
		price = h1[len(h1)-1].Close
		t.Price = price
	}
	if len(h1) < MinHistory {
		a.lgr.Debug("short candle history, estimating indicators",
			logger.String("symbol", t.Symbol),
			logger.Int("candles", len(h1)),
		)
		return Estimate(t)
	}

	cl := closes(h1)
	ind := models.IndicatorSet{Price: price, Change24h: t.Change24h}

	ind.RSI = calc.Finite(calc.Try("rsi", func() (float64, error) {
		return RSI(cl, 14)
	})).OrDefault(a.lgr, NeutralRSI)

	ind.MACD = calc.Try("macd", func() (models.MACD, error) {
		m, err := MACDOf(cl)
		if err == nil && !calc.IsFinite(m.Line, m.Signal, m.Histogram) {
			err = calc.ErrNonFinite
		}
		return m, err
	}).OrDefault(a.lgr, models.MACD{})

	ema := func(period int) float64 {
		return calc.Finite(calc.Try(fmt.Sprintf("ema%d", period), func() (float64, error) {
			return EMA(cl, period)
		})).OrDefault(a.lgr, price)
	}
	ind.EMA = models.EMAs{EMA9: ema(9), EMA21: ema(21), EMA50: ema(50), EMA200: ema(200)}

	if bb := calc.Try("bollinger", func() (*models.Bollinger, error) {
		return BollingerOf(cl, 20, 2)
	}); bb.OK() && calc.IsFinite(bb.Value.Upper, bb.Value.Lower) {
		ind.Bollinger = bb.Value
	}

	ind.ATR = calc.Finite(calc.Try("atr", func() (float64, error) {
		return ATR(h1, 14)
	})).OrDefault(a.lgr, 0)

	ind.Volatility = calc.Finite(calc.Try("volatility", func() (float64, error) {
		return Volatility(h1)
	})).OrDefault(a.lgr, rangeVolatility(t))

	ind.Momentum = calc.Finite(calc.Try("momentum", func() (float64, error) {
		return Momentum(cl, 10)
	})).OrDefault(a.lgr, 0)

	ind.VolumeRatio = calc.Finite(calc.Try("volume_ratio", func() (float64, error) {
		return VolumeRatio(h1, 20)
	})).OrDefault(a.lgr, NeutralVolumeRatio)

	recent := h1
	if len(recent) > 100 {
		recent = recent[len(recent)-100:]
	}
	ind.Support, ind.Resistance = Pivots(recent, price, 5)
	if len(ind.Support) == 0 && t.Low24h > 0 && t.Low24h < price {
		ind.Support = []float64{t.Low24h}
	}
	if len(ind.Resistance) == 0 && t.High24h > price {
		ind.Resistance = []float64{t.High24h}
	}
	return ind
}

// Estimate derives an indicator set from 24h stats alone.
func Estimate(t models.Ticker) models.IndicatorSet {
	price, ch := t.Price, t.Change24h
	if !calc.IsFinite(ch) {
		ch = 0
	}
	ind := models.IndicatorSet{
		Price:       price,
		Change24h:   ch,
		RSI:         NeutralRSI + calc.Clamp(ch*3, -35, 35),
		MACD:        models.MACD{Line: ch * 0.1, Histogram: ch * 0.1},
		VolumeRatio: NeutralVolumeRatio,
		Volatility:  rangeVolatility(t),
		Momentum:    ch,
		Estimated:   true,
	}
	ind.EMA = models.EMAs{
		EMA9:   price * (1 - ch/100*0.1),
		EMA21:  price * (1 - ch/100*0.25),
		EMA50:  price * (1 - ch/100*0.5),
		EMA200: price * (1 - ch/100),
	}
	if t.High24h > t.Low24h {
		ind.ATR = (t.High24h - t.Low24h) / 5
	}
	if t.Low24h > 0 && t.Low24h < price {
		ind.Support = []float64{t.Low24h}
	}
	if t.High24h > price {
		ind.Resistance = []float64{t.High24h}
	}
	return ind
}

func rangeVolatility(t models.Ticker) float64 {
	if t.Price > 0 && t.High24h > t.Low24h {
		return (t.High24h - t.Low24h) / t.Price * 100
	}
	if calc.IsFinite(t.Change24h) {
		return math.Abs(t.Change24h)
	}
	return 0
}

// DetectRegime classifies the market from EMA alignment and 24h change.
func DetectRegime(ind models.IndicatorSet) models.Regime {
	p, e50, e200 := ind.Price, ind.EMA.EMA50, ind.EMA.EMA200
	if p <= 0 || !calc.IsFinite(p, e50, e200) {
		return models.RegimeUnknown
	}
	if ind.Estimated {
		switch {
		case ind.Change24h > 2:
			return models.RegimeBull
		case ind.Change24h < -2:
			return models.RegimeBear
		default:
			return models.RegimeSideways
		}
	}
	switch {
	case p > e50 && e50 > e200 && (ind.Change24h > 2 || ind.Momentum > 0):
		return models.RegimeBull
	case p < e50 && e50 < e200 && (ind.Change24h < -2 || ind.Momentum < 0):
		return models.RegimeBear
	default:
		return models.RegimeSideways
	}
}

// Trend compares EMA9 and EMA21 of the closes. HOLD when history is short or
// the averages coincide.
func Trend(candles []models.Candle) models.Direction {
	cl := closes(validCandles(candles))
	fast, err := EMA(cl, 9)
	if err != nil {
		return models.DirectionHold
	}
	slow, err := EMA(cl, 21)
	if err != nil {
		return models.DirectionHold
	}
	switch {
	case fast > slow:
		return models.DirectionLong
	case fast < slow:
		return models.DirectionShort
	default:
		return models.DirectionHold
	}
}
