package consensus

import (
	"math"
	"testing"

	"SignalEngine/internal/domain/models"
)

func testWeights() Weights {
	return Weights{Sources: map[string]float64{"alpha": 30, "beta": 25, "gamma": 20}, Technical: 25}
}

func op(src string, conf float64, rec models.Recommendation) models.AIOpinion {
	return models.AIOpinion{Source: src, Confidence: conf, Recommendation: rec, RiskLevel: models.RiskMedium, TimeHorizon: models.HorizonShort}
}

func ptr(v float64) *float64 { return &v }

func TestCombineConfidence(t *testing.T) {
	e := NewEngine(nil, testWeights())
	ops := []models.AIOpinion{op("alpha", 80, models.Buy), op("beta", 60, models.Buy), op("gamma", 40, models.Hold)}
	res := e.Combine(ops, 70, 3)
	// 80*.30 + 60*.25 + 40*.20 + 70*.25
	want := 24 + 15 + 8 + 17.5
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", res.Confidence, want)
	}
	if res.Recommendation != models.Buy {
		t.Fatalf("plurality lost: %s", res.Recommendation)
	}
	if len(res.Breakdown) != 4 || res.Breakdown[3].Source != TechnicalSource {
		t.Fatalf("breakdown = %+v", res.Breakdown)
	}
}

func TestCombineBoundsAndDeterminism(t *testing.T) {
	e := NewEngine(nil, Weights{Sources: map[string]float64{"alpha": 90, "beta": 90}, Technical: 90})
	inputs := [][]float64{{100, 100, 100}, {0, 0, 0}, {-20, 50, 300}, {55.5, 12.25, 99}}
	for _, in := range inputs {
		ops := []models.AIOpinion{op("alpha", in[0], models.Buy), op("beta", in[1], models.Sell)}
		first := e.Combine(ops, in[2], 4)
		if first.Confidence < 0 || first.Confidence > 100 {
			t.Fatalf("confidence %v out of range for %v", first.Confidence, in)
		}
		for i := 0; i < 5; i++ {
			again := e.Combine(ops, in[2], 4)
			if again.Confidence != first.Confidence || again.Recommendation != first.Recommendation {
				t.Fatalf("non-deterministic result for %v", in)
			}
		}
	}
}

func TestCombineNonFiniteFallsBackToMax(t *testing.T) {
	e := NewEngine(nil, testWeights())
	ops := []models.AIOpinion{op("alpha", math.Inf(1), models.Buy), op("beta", 72, models.Buy)}
	res := e.Combine(ops, 64, 3)
	if res.Confidence != 72 {
		t.Fatalf("confidence = %v, want 72", res.Confidence)
	}
}

func TestRecommendationResolution(t *testing.T) {
	tests := []struct {
		name string
		recs []models.Recommendation
		want models.Recommendation
	}{
		{"unanimous", []models.Recommendation{models.StrongBuy, models.StrongBuy, models.StrongBuy}, models.StrongBuy},
		{"plurality", []models.Recommendation{models.Sell, models.Buy, models.Buy}, models.Buy},
		{"three way split", []models.Recommendation{models.StrongBuy, models.Hold, models.StrongSell}, models.StrongSell},
		{"split without extreme", []models.Recommendation{models.Buy, models.Hold, models.StrongBuy}, models.Hold},
		{"single", []models.Recommendation{models.Sell}, models.Sell},
		{"none", nil, models.Hold},
	}
	e := NewEngine(nil, testWeights())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ops []models.AIOpinion
			for i, r := range tt.recs {
				ops = append(ops, op([]string{"alpha", "beta", "gamma"}[i], 60, r))
			}
			if got := e.Combine(ops, 50, 3).Recommendation; got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRiskOverrides(t *testing.T) {
	low := []models.AIOpinion{{Source: "alpha", RiskLevel: models.RiskLow}, {Source: "beta", RiskLevel: models.RiskLow}, {Source: "gamma", RiskLevel: models.RiskMedium}}
	if got := resolveRisk(low, 1.5); got != models.RiskLow {
		t.Fatalf("calm market with low risk = %s", got)
	}
	if got := resolveRisk(low, 7); got != models.RiskHigh {
		t.Fatalf("volatile market = %s", got)
	}
	// avg 1.33 rounds to LOW without an override
	if got := resolveRisk(low, 3); got != models.RiskLow {
		t.Fatalf("rounded average = %s", got)
	}
	mixed := []models.AIOpinion{{RiskLevel: models.RiskHigh}, {RiskLevel: models.RiskMedium}}
	if got := resolveRisk(mixed, 1); got != models.RiskHigh {
		t.Fatalf("avg 2.5 should round to HIGH, got %s", got)
	}
}

func TestLevelsAndHorizon(t *testing.T) {
	ops := []models.AIOpinion{
		{Source: "alpha", PriceTarget: ptr(110), StopLoss: ptr(95), TimeHorizon: models.HorizonLong},
		{Source: "beta", PriceTarget: ptr(120), TimeHorizon: models.HorizonLong},
		{Source: "gamma", StopLoss: ptr(97), TimeHorizon: models.HorizonShort},
	}
	res := NewEngine(nil, testWeights()).Combine(ops, 50, 3)
	if res.PriceTarget == nil || *res.PriceTarget != 115 {
		t.Fatalf("price target = %v", res.PriceTarget)
	}
	if res.StopLoss == nil || *res.StopLoss != 97 {
		t.Fatalf("stop loss = %v", res.StopLoss)
	}
	if res.TimeHorizon != models.HorizonLong {
		t.Fatalf("horizon = %s", res.TimeHorizon)
	}

	split := []models.AIOpinion{{TimeHorizon: models.HorizonLong}, {TimeHorizon: models.HorizonShort}}
	if got := resolveHorizon(split); got != models.HorizonMedium {
		t.Fatalf("split horizon = %s", got)
	}
}

func TestWeightsTotal(t *testing.T) {
	if got := testWeights().Total(); got != 100 {
		t.Fatalf("Total() = %v", got)
	}
}
