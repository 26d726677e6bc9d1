package technical

import (
	"fmt"
	"math"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/calc"
)

// Sub-signal weights.
const (
	weightEMACross  = 20.0
	weightRSI       = 20.0
	weightMACD      = 15.0
	weightVolume    = 25.0
	weightLevels    = 15.0
	weightBollinger = 20.0

	baseConfidence  = 40.0
	volumeBreakout  = 1.5
	levelProximity  = 0.01
	strongThreshold = 80.0
	mediumThreshold = 65.0
)

type vote struct {
	dir    models.Direction
	weight float64
	reason string
}

// rsiBands returns the oversold/overbought levels for a regime. Trends shift
// both bands in their own direction.
func rsiBands(r models.Regime) (oversold, overbought float64) {
	switch r {
	case models.RegimeBull:
		return 40, 80
	case models.RegimeBear:
		return 20, 60
	default:
		return 30, 70
	}
}

func (a *Analyzer) votes(ind models.IndicatorSet, regime models.Regime) []vote {
	var vs []vote
	add := func(d models.Direction, w float64, format string, args ...any) {
		vs = append(vs, vote{dir: d, weight: w, reason: fmt.Sprintf(format, args...)})
	}

	if e := ind.EMA; e.EMA9 > 0 && e.EMA21 > 0 {
		switch {
		case e.EMA9 > e.EMA21:
			add(models.DirectionLong, weightEMACross, "EMA9 %.4f above EMA21 %.4f", e.EMA9, e.EMA21)
		case e.EMA9 < e.EMA21:
			add(models.DirectionShort, weightEMACross, "EMA9 %.4f below EMA21 %.4f", e.EMA9, e.EMA21)
		}
	}

	lo, hi := rsiBands(regime)
	switch {
	case ind.RSI < lo:
		add(models.DirectionLong, weightRSI, "RSI %.1f under %.0f (%s)", ind.RSI, lo, regime)
	case ind.RSI > hi:
		add(models.DirectionShort, weightRSI, "RSI %.1f over %.0f (%s)", ind.RSI, hi, regime)
	}

	if m := ind.MACD; m.Histogram != 0 {
		switch {
		case m.Histogram > 0 && m.Line >= m.Signal:
			add(models.DirectionLong, weightMACD, "MACD histogram %.4f positive", m.Histogram)
		case m.Histogram < 0 && m.Line <= m.Signal:
			add(models.DirectionShort, weightMACD, "MACD histogram %.4f negative", m.Histogram)
		}
	}

	if ind.VolumeRatio > volumeBreakout && ind.Momentum != 0 {
		d := models.DirectionLong
		if ind.Momentum < 0 {
			d = models.DirectionShort
		}
		add(d, weightVolume, "volume %.2fx average with momentum %.2f%%", ind.VolumeRatio, ind.Momentum)
	}

	if ind.Price > 0 {
		if len(ind.Support) > 0 && (ind.Price-ind.Support[0])/ind.Price < levelProximity {
			add(models.DirectionLong, weightLevels, "price within 1%% of support %.4f", ind.Support[0])
		} else if len(ind.Resistance) > 0 && (ind.Resistance[0]-ind.Price)/ind.Price < levelProximity {
			add(models.DirectionShort, weightLevels, "price within 1%% of resistance %.4f", ind.Resistance[0])
		}
	}

	if bb := ind.Bollinger; bb != nil && ind.Price > 0 {
		switch {
		case ind.Price <= bb.Lower:
			add(models.DirectionLong, weightBollinger, "price at lower band %.4f", bb.Lower)
		case ind.Price >= bb.Upper:
			add(models.DirectionShort, weightBollinger, "price at upper band %.4f", bb.Upper)
		}
	}
	return vs
}

// GenerateDirectionalSignal tallies independent sub-signals. The side with
// more votes wins, ties go to the heavier side, and a full tie or no votes
// at all is HOLD. A candidate below the regime minimum is also HOLD.
func (a *Analyzer) GenerateDirectionalSignal(ind models.IndicatorSet, regime models.Regime) models.DirectionalSignal {
	out := models.DirectionalSignal{Direction: models.DirectionHold, Strength: models.StrengthWeak}
	if ind.Price <= 0 || !calc.IsFinite(ind.Price) {
		out.Reasoning = []string{"no usable price"}
		return out
	}

	vs := a.votes(ind, regime)
	if len(vs) == 0 {
		out.Reasoning = []string{"no sub-signal fired"}
		return out
	}

	var nLong, nShort int
	var wLong, wShort float64
	for _, v := range vs {
		if v.dir == models.DirectionLong {
			nLong++
			wLong += v.weight
		} else {
			nShort++
			wShort += v.weight
		}
	}

	dir := models.DirectionHold
	switch {
	case nLong > nShort:
		dir = models.DirectionLong
	case nShort > nLong:
		dir = models.DirectionShort
	case wLong > wShort:
		dir = models.DirectionLong
	case wShort > wLong:
		dir = models.DirectionShort
	}
	for _, v := range vs {
		out.Reasoning = append(out.Reasoning, string(v.dir)+": "+v.reason)
	}
	if dir == models.DirectionHold {
		out.Reasoning = append(out.Reasoning, "sub-signals cancel out")
		return out
	}

	win, lose := wLong, wShort
	if dir == models.DirectionShort {
		win, lose = wShort, wLong
	}
	conf := calc.Clamp(baseConfidence+win-0.5*lose, 0, 100)
	out.Confidence = conf

	if need := a.MinimumFor(regime); conf < need {
		out.Reasoning = append(out.Reasoning, fmt.Sprintf("confidence %.1f below %s minimum %.0f", conf, regime, need))
		return out
	}

	out.Direction = dir
	out.Strength = StrengthFor(conf)
	out.EntryPrice = a.entry(ind, dir)
	return out
}

// StrengthFor maps a confidence onto the strength tiers.
func StrengthFor(conf float64) models.Strength {
	switch {
	case conf > strongThreshold:
		return models.StrengthStrong
	case conf > mediumThreshold:
		return models.StrengthMedium
	default:
		return models.StrengthWeak
	}
}

// entry starts from the better of price and a nearby EMA9, then nudges a
// little further in the trade's favor.
func (a *Analyzer) entry(ind models.IndicatorSet, dir models.Direction) float64 {
	p, e9 := ind.Price, ind.EMA.EMA9
	ref := p
	near := e9 > 0 && math.Abs(p-e9)/p <= 2*a.entryOffset
	if dir == models.DirectionLong {
		if near && e9 < p {
			ref = e9
		}
		return ref * (1 - a.entryOffset)
	}
	if near && e9 > p {
		ref = e9
	}
	return ref * (1 + a.entryOffset)
}
