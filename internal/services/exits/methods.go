package exits

import (
	"errors"
	"fmt"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/calc"
	"SignalEngine/internal/services/technical"
)

// Method names used in configuration.
const (
	MethodPercentage = "percentage"
	MethodVolatility = "volatility"
	MethodATR        = "atr"
	MethodLevels     = "support_resistance"
	MethodFibonacci  = "fibonacci"
	MethodRegime     = "regime"
)

// ErrNoLevels is returned when a method has nothing to anchor targets on.
var ErrNoLevels = errors.New("no usable levels")

// nonFiniteConfidence is the confidence of a method that fell back to the
// percentage ladder because its inputs were not finite.
const nonFiniteConfidence = 50

// Input is everything a method may look at.
type Input struct {
	Direction  models.Direction
	Entry      float64
	Strength   models.Strength
	Confidence float64
	Indicators models.IndicatorSet
	Candles    []models.Candle
	Regime     models.Regime
	// Sentiment in [-1, 1], positive is bullish.
	Sentiment float64
}

// Candidate is the normalized output of every method.
type Candidate struct {
	Method     string
	TP1        float64
	TP2        float64
	TP3        float64
	Weight     float64
	Confidence float64
}

func (c Candidate) levels() [3]float64 { return [3]float64{c.TP1, c.TP2, c.TP3} }

// Method computes one take-profit candidate.
type Method interface {
	Name() string
	Compute(in Input) (Candidate, error)
}

// ladder places three targets at percentage distances from entry.
func ladder(in Input, pct [3]float64) (float64, float64, float64) {
	s := in.Direction.Sign()
	at := func(p float64) float64 { return in.Entry + s*in.Entry*p/100 }
	return at(pct[0]), at(pct[1]), at(pct[2])
}

// fromDistances places targets at absolute price distances from entry.
func fromDistances(in Input, d [3]float64) (float64, float64, float64) {
	s := in.Direction.Sign()
	return in.Entry + s*d[0], in.Entry + s*d[1], in.Entry + s*d[2]
}

// Percentage is the fixed ladder every plan falls back to.
type Percentage struct {
	Percents [3]float64
}

func (Percentage) Name() string { return MethodPercentage }

func (p Percentage) Compute(in Input) (Candidate, error) {
	tp1, tp2, tp3 := ladder(in, p.Percents)
	return Candidate{Method: MethodPercentage, TP1: tp1, TP2: tp2, TP3: tp3, Weight: 20, Confidence: 100}, nil
}

// fallback is the percentage ladder relabelled for a method whose inputs
// were not finite.
func fallback(in Input, base Percentage, name string, weight float64) Candidate {
	c, _ := base.Compute(in)
	c.Method, c.Weight, c.Confidence = name, weight, nonFiniteConfidence
	return c
}

// Volatility widens the ladder with realized volatility.
type Volatility struct{ base Percentage }

func (Volatility) Name() string { return MethodVolatility }

func (v Volatility) Compute(in Input) (Candidate, error) {
	const weight = 25
	vol := in.Indicators.Volatility
	if !calc.IsFinite(vol) {
		return fallback(in, v.base, MethodVolatility, weight), nil
	}
	var pct [3]float64
	switch {
	case vol < 2:
		pct = [3]float64{1.5, 3, 5}
	case vol < 4:
		pct = [3]float64{2.5, 4.5, 7}
	case vol < 6:
		pct = [3]float64{3.5, 6, 9}
	default:
		pct = [3]float64{5, 8, 12}
	}
	tp1, tp2, tp3 := ladder(in, pct)
	return Candidate{Method: MethodVolatility, TP1: tp1, TP2: tp2, TP3: tp3, Weight: weight, Confidence: 80}, nil
}

// ATR spaces targets at 1.5, 2.5 and 4 average true ranges.
type ATR struct{ base Percentage }

func (ATR) Name() string { return MethodATR }

func (a ATR) Compute(in Input) (Candidate, error) {
	const weight = 20
	atr := in.Indicators.ATR
	if !calc.IsFinite(atr) {
		return fallback(in, a.base, MethodATR, weight), nil
	}
	if atr <= 0 {
		return Candidate{}, fmt.Errorf("atr %v: %w", atr, ErrNoLevels)
	}
	tp1, tp2, tp3 := fromDistances(in, [3]float64{1.5 * atr, 2.5 * atr, 4 * atr})
	return Candidate{Method: MethodATR, TP1: tp1, TP2: tp2, TP3: tp3, Weight: weight, Confidence: 85}, nil
}

// Levels targets the nearest pivots beyond entry. Missing rungs are spaced
// by the distance to the first level.
type Levels struct{ base Percentage }

func (Levels) Name() string { return MethodLevels }

func (l Levels) Compute(in Input) (Candidate, error) {
	const weight = 30
	src := in.Indicators.Resistance
	if in.Direction == models.DirectionShort {
		src = in.Indicators.Support
	}
	if !calc.IsFinite(src...) {
		return fallback(in, l.base, MethodLevels, weight), nil
	}
	s := in.Direction.Sign()
	var beyond []float64
	for _, lv := range src {
		if (lv-in.Entry)*s > 0 {
			beyond = append(beyond, lv)
		}
	}
	if len(beyond) == 0 {
		return Candidate{}, ErrNoLevels
	}
	step := beyond[0] - in.Entry
	for len(beyond) < 3 {
		beyond = append(beyond, beyond[len(beyond)-1]+step)
	}
	return Candidate{Method: MethodLevels, TP1: beyond[0], TP2: beyond[1], TP3: beyond[2], Weight: weight, Confidence: 70}, nil
}

// Fibonacci projects 0.382, 0.618 and 1.0 of the recent swing from entry.
type Fibonacci struct {
	base     Percentage
	Lookback int
}

func (Fibonacci) Name() string { return MethodFibonacci }

func (f Fibonacci) Compute(in Input) (Candidate, error) {
	const weight = 15
	high, low, err := technical.SwingRange(in.Candles, f.Lookback)
	if err != nil {
		return Candidate{}, err
	}
	if !calc.IsFinite(high, low) {
		return fallback(in, f.base, MethodFibonacci, weight), nil
	}
	rng := high - low
	if rng <= 0 {
		return Candidate{}, fmt.Errorf("swing range %v: %w", rng, ErrNoLevels)
	}
	tp1, tp2, tp3 := fromDistances(in, [3]float64{0.382 * rng, 0.618 * rng, rng})
	return Candidate{Method: MethodFibonacci, TP1: tp1, TP2: tp2, TP3: tp3, Weight: weight, Confidence: 65}, nil
}

// Regime stretches targets when the trade runs with the market and tightens
// them against it. Aligned sentiment adds up to 20% more room.
type Regime struct{ base Percentage }

func (Regime) Name() string { return MethodRegime }

func (r Regime) Compute(in Input) (Candidate, error) {
	if !calc.IsFinite(in.Sentiment) {
		return fallback(in, r.base, MethodRegime, 15), nil
	}
	var pct [3]float64
	var weight float64
	aligned := (in.Regime == models.RegimeBull && in.Direction == models.DirectionLong) ||
		(in.Regime == models.RegimeBear && in.Direction == models.DirectionShort)
	counter := (in.Regime == models.RegimeBull && in.Direction == models.DirectionShort) ||
		(in.Regime == models.RegimeBear && in.Direction == models.DirectionLong)
	switch {
	case aligned:
		pct, weight = [3]float64{3, 6, 10}, 30
	case counter:
		pct, weight = [3]float64{1.5, 3, 5}, 20
	default:
		pct, weight = [3]float64{2, 3.5, 5}, 15
	}
	scale := 1 + 0.2*calc.Clamp(in.Sentiment*in.Direction.Sign(), -1, 1)
	for i := range pct {
		pct[i] *= scale
	}
	tp1, tp2, tp3 := ladder(in, pct)
	return Candidate{Method: MethodRegime, TP1: tp1, TP2: tp2, TP3: tp3, Weight: weight, Confidence: 75}, nil
}

// factories maps configured names onto constructors.
var factories = map[string]func(cfg Config) Method{
	MethodPercentage: func(cfg Config) Method { return Percentage{Percents: cfg.Percents} },
	MethodVolatility: func(cfg Config) Method { return Volatility{base: Percentage{Percents: cfg.Percents}} },
	MethodATR:        func(cfg Config) Method { return ATR{base: Percentage{Percents: cfg.Percents}} },
	MethodLevels:     func(cfg Config) Method { return Levels{base: Percentage{Percents: cfg.Percents}} },
	MethodFibonacci: func(cfg Config) Method {
		return Fibonacci{base: Percentage{Percents: cfg.Percents}, Lookback: cfg.FibonacciLookback}
	},
	MethodRegime: func(cfg Config) Method { return Regime{base: Percentage{Percents: cfg.Percents}} },
}

// Known reports whether name is a registered method.
func Known(name string) bool {
	_, ok := factories[name]
	return ok
}
