// Package consensus merges model opinions and the technical score into one
// confidence and recommendation.
package consensus

import (
	"math"
	"sort"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/calc"
	"SignalEngine/pkg/logger"
)

// TechnicalSource is the breakdown entry for the technical score.
const TechnicalSource = "technical"

// Volatility bands that override the averaged risk level.
const (
	highVolatility = 6.0
	lowVolatility  = 2.0
	lowRiskAverage = 1.5
)

// Weights are percentages. Sources plus Technical should total about 100.
type Weights struct {
	Sources   map[string]float64
	Technical float64
}

// Total returns the sum of all weights.
func (w Weights) Total() float64 {
	t := w.Technical
	for _, v := range w.Sources {
		t += v
	}
	return t
}

type Engine struct {
	lgr     *logger.Logger
	weights Weights
}

func NewEngine(lgr *logger.Logger, w Weights) *Engine {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Engine{lgr: lgr, weights: w}
}

// Weights returns the configured weights.
func (e *Engine) Weights() Weights { return e.weights }

// Combine is deterministic for fixed inputs and always returns a confidence
// in [0, 100].
func (e *Engine) Combine(opinions []models.AIOpinion, technicalScore, volatility float64) models.ConsensusResult {
	target, stop := resolveLevels(opinions)
	return models.ConsensusResult{
		Confidence:     e.confidence(opinions, technicalScore),
		Recommendation: resolveRecommendation(opinions),
		RiskLevel:      resolveRisk(opinions, volatility),
		PriceTarget:    target,
		StopLoss:       stop,
		TimeHorizon:    resolveHorizon(opinions),
		Breakdown:      e.breakdown(opinions, technicalScore),
	}
}

func (e *Engine) weight(source string) float64 {
	return e.weights.Sources[source]
}

// confidence is the weighted sum. A non-finite sum falls back to the largest
// individual confidence.
func (e *Engine) confidence(opinions []models.AIOpinion, technicalScore float64) float64 {
	sum := technicalScore * e.weights.Technical / 100
	for _, o := range opinions {
		sum += o.Confidence * e.weight(o.Source) / 100
	}
	if !calc.IsFinite(sum) {
		best := math.Inf(-1)
		for _, v := range append(confidences(opinions), technicalScore) {
			if calc.IsFinite(v) && v > best {
				best = v
			}
		}
		e.lgr.Debug("weighted confidence not finite, using max",
			logger.Float64("fallback", best),
		)
		if math.IsInf(best, -1) {
			return 0
		}
		sum = best
	}
	return calc.Clamp(sum, 0, 100)
}

func confidences(opinions []models.AIOpinion) []float64 {
	out := make([]float64, len(opinions))
	for i, o := range opinions {
		out[i] = o.Confidence
	}
	return out
}

func (e *Engine) breakdown(opinions []models.AIOpinion, technicalScore float64) []models.SourceContribution {
	out := make([]models.SourceContribution, 0, len(opinions)+1)
	for _, o := range opinions {
		w := e.weight(o.Source)
		out = append(out, models.SourceContribution{
			Source:         o.Source,
			Confidence:     o.Confidence,
			Weight:         w,
			Contribution:   o.Confidence * w / 100,
			Recommendation: o.Recommendation,
			Fallback:       o.Fallback,
		})
	}
	return append(out, models.SourceContribution{
		Source:       TechnicalSource,
		Confidence:   technicalScore,
		Weight:       e.weights.Technical,
		Contribution: technicalScore * e.weights.Technical / 100,
	})
}

// resolveRecommendation: unanimous wins, then a unique plurality of at least
// two, then the most bearish of the tied leaders.
func resolveRecommendation(opinions []models.AIOpinion) models.Recommendation {
	if len(opinions) == 0 {
		return models.Hold
	}
	counts := make(map[models.Recommendation]int, len(opinions))
	for _, o := range opinions {
		counts[normalize(o.Recommendation)]++
	}
	if len(counts) == 1 {
		return normalize(opinions[0].Recommendation)
	}
	leaders, top := leadersOf(counts)
	if len(leaders) == 1 && top >= 2 {
		return leaders[0]
	}
	sort.Slice(leaders, func(i, j int) bool { return leaders[i].Priority() < leaders[j].Priority() })
	return leaders[0]
}

func normalize(r models.Recommendation) models.Recommendation {
	switch r {
	case models.StrongSell, models.Sell, models.Buy, models.StrongBuy:
		return r
	default:
		return models.Hold
	}
}

func leadersOf[K comparable](counts map[K]int) ([]K, int) {
	top := 0
	for _, n := range counts {
		if n > top {
			top = n
		}
	}
	var out []K
	for k, n := range counts {
		if n == top {
			out = append(out, k)
		}
	}
	return out, top
}

// resolveRisk rounds the average risk score, then lets volatility override.
func resolveRisk(opinions []models.AIOpinion, volatility float64) models.RiskLevel {
	avg := models.RiskMedium.Score()
	if len(opinions) > 0 {
		sum := 0.0
		for _, o := range opinions {
			sum += o.RiskLevel.Score()
		}
		avg = sum / float64(len(opinions))
	}
	switch {
	case volatility > highVolatility:
		return models.RiskHigh
	case volatility < lowVolatility && avg <= lowRiskAverage:
		return models.RiskLow
	}
	return models.RiskFromScore(int(math.Round(avg)))
}

// resolveLevels averages price targets and takes the highest stop of those
// provided, regardless of direction.
func resolveLevels(opinions []models.AIOpinion) (target, stop *float64) {
	var sum float64
	var n int
	for _, o := range opinions {
		if o.PriceTarget != nil && calc.IsFinite(*o.PriceTarget) {
			sum += *o.PriceTarget
			n++
		}
		if o.StopLoss != nil && calc.IsFinite(*o.StopLoss) {
			if stop == nil || *o.StopLoss > *stop {
				v := *o.StopLoss
				stop = &v
			}
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		target = &avg
	}
	return target, stop
}

func resolveHorizon(opinions []models.AIOpinion) models.TimeHorizon {
	if len(opinions) == 0 {
		return models.HorizonMedium
	}
	counts := make(map[models.TimeHorizon]int, len(opinions))
	for _, o := range opinions {
		counts[o.TimeHorizon]++
	}
	leaders, top := leadersOf(counts)
	if len(leaders) == 1 && (top >= 2 || len(opinions) == 1) {
		switch leaders[0] {
		case models.HorizonShort, models.HorizonMedium, models.HorizonLong:
			return leaders[0]
		}
	}
	return models.HorizonMedium
}
