package exits

import (
	"math"
	"testing"
	"time"

	"SignalEngine/internal/domain/models"
)

func percentOnly() Config {
	cfg := DefaultConfig()
	cfg.Methods = nil
	return cfg
}

func mustCalculator(t *testing.T, cfg Config) *Calculator {
	t.Helper()
	c, err := NewCalculator(nil, cfg)
	if err != nil {
		t.Fatalf("NewCalculator() error = %v", err)
	}
	return c
}

func TestPercentageOnlyExact(t *testing.T) {
	c := mustCalculator(t, percentOnly())
	plan, err := c.Calculate(Input{Direction: models.DirectionLong, Entry: 100, Strength: models.StrengthMedium, Confidence: 75})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	tp1, tp2, tp3 := plan.Prices()
	if tp1 != 102.5 || tp2 != 104.5 || tp3 != 107.0 {
		t.Fatalf("got %v/%v/%v, want 102.5/104.5/107", tp1, tp2, tp3)
	}
	if plan.PrimaryMethod != MethodPercentage || plan.Confidence != 100 {
		t.Fatalf("primary %s confidence %v", plan.PrimaryMethod, plan.Confidence)
	}
	if plan.Levels[0].Percent != 40 || plan.Levels[1].Percent != 35 || plan.Levels[2].Percent != 25 {
		t.Fatalf("allocation = %+v", plan.Levels)
	}

	static := c.StaticPlan(100, models.DirectionLong)
	if a, b, c := static.Prices(); a != 102.5 || b != 104.5 || c != 107.0 {
		t.Fatalf("static plan %v/%v/%v", a, b, c)
	}
}

func TestValidateFixesOrdering(t *testing.T) {
	plan := Validate([3]float64{103, 102, 108}, 100, models.DirectionLong)
	tp1, tp2, tp3 := plan.Prices()
	if !(tp1 < tp2 && tp2 < tp3) {
		t.Fatalf("not ordered: %v %v %v", tp1, tp2, tp3)
	}
	if tp1 < 100*1.005 {
		t.Fatalf("tp1 %v under minimum distance", tp1)
	}
	if tp2 < tp1*1.01 || tp3 < tp2*1.02 {
		t.Fatalf("gaps too small: %v %v %v", tp1, tp2, tp3)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestValidateBounds(t *testing.T) {
	long := Validate([3]float64{100.1, 300, 500}, 100, models.DirectionLong)
	if tp1, tp2, tp3 := long.Prices(); !near(tp1, 100.5) || !near(tp2, 125) || !near(tp3, 140) {
		t.Fatalf("long clamps = %v %v %v", tp1, tp2, tp3)
	}
	short := Validate([3]float64{99, 99.5, math.NaN()}, 100, models.DirectionShort)
	tp1, tp2, tp3 := short.Prices()
	if !(tp1 > tp2 && tp2 > tp3 && tp1 <= 99.5) {
		t.Fatalf("short plan not mirrored: %v %v %v", tp1, tp2, tp3)
	}
	if tp3 < 60 {
		t.Fatalf("short tp3 %v beyond 40%%", tp3)
	}
}

func TestCalculateAllMethodsShort(t *testing.T) {
	c := mustCalculator(t, DefaultConfig())
	candles := make([]models.Candle, 60)
	for i := range candles {
		p := 100 + float64(i%10)
		candles[i] = models.Candle{Time: time.Unix(int64(i)*3600, 0), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1}
	}
	in := Input{
		Direction:  models.DirectionShort,
		Entry:      100,
		Strength:   models.StrengthStrong,
		Confidence: 85,
		Regime:     models.RegimeBear,
		Sentiment:  -0.5,
		Candles:    candles,
		Indicators: models.IndicatorSet{Volatility: 3, ATR: 1.2, Support: []float64{98, 96}},
	}
	plan, err := c.Calculate(in)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	tp1, tp2, tp3 := plan.Prices()
	if !(tp1 < 100 && tp2 < tp1 && tp3 < tp2) {
		t.Fatalf("short targets not descending below entry: %v %v %v", tp1, tp2, tp3)
	}
	if plan.PrimaryMethod == "" || plan.Confidence <= 0 || plan.Confidence > 100 {
		t.Fatalf("plan metadata = %s %v", plan.PrimaryMethod, plan.Confidence)
	}
}

type panicMethod struct{}

func (panicMethod) Name() string { return "panics" }
func (panicMethod) Compute(Input) (Candidate, error) {
	panic("boom")
}

type wrongSide struct{}

func (wrongSide) Name() string { return "wrong_side" }
func (wrongSide) Compute(in Input) (Candidate, error) {
	return Candidate{TP1: in.Entry - 1, TP2: in.Entry - 2, TP3: in.Entry - 3, Weight: 100, Confidence: 100}, nil
}

func TestFailingMethodsExcluded(t *testing.T) {
	c := mustCalculator(t, percentOnly())
	c.methods = []Method{panicMethod{}, wrongSide{}}
	plan, err := c.Calculate(Input{Direction: models.DirectionLong, Entry: 100, Strength: models.StrengthMedium, Confidence: 75})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if tp1, _, _ := plan.Prices(); tp1 != 102.5 {
		t.Fatalf("failed methods leaked into plan: tp1 = %v", tp1)
	}
}

type fixedMethod Candidate

func (f fixedMethod) Name() string { return f.Method }

func (f fixedMethod) Compute(Input) (Candidate, error) { return Candidate(f), nil }

func TestCombineWeightedAverage(t *testing.T) {
	c := mustCalculator(t, percentOnly())
	// Effective weights: percentage 20*100/100=20, atr 60*75/100=45,
	// support_resistance 70*50/100=35. The latter has the larger base
	// weight but the smaller effective one.
	c.methods = []Method{
		fixedMethod{Method: MethodATR, TP1: 104, TP2: 108, TP3: 112, Weight: 60, Confidence: 75},
		fixedMethod{Method: MethodLevels, TP1: 103, TP2: 106, TP3: 110, Weight: 70, Confidence: 50},
	}
	// Medium strength at confidence 75 gives a multiplier of exactly 1.
	plan, err := c.Calculate(Input{Direction: models.DirectionLong, Entry: 100, Strength: models.StrengthMedium, Confidence: 75})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	want := [3]float64{
		(102.5*20 + 104*45 + 103*35) / 100,
		(104.5*20 + 108*45 + 106*35) / 100,
		(107.0*20 + 112*45 + 110*35) / 100,
	}
	for i, w := range want {
		if got := plan.Levels[i].Price; math.Abs(got-w) > 1e-9 {
			t.Fatalf("tp%d = %v, want %v", i+1, got, w)
		}
	}
	if tp1, tp2, tp3 := plan.Prices(); math.Abs(tp1-103.35) > 1e-9 || math.Abs(tp2-106.6) > 1e-9 || math.Abs(tp3-110.3) > 1e-9 {
		t.Fatalf("levels %v/%v/%v, want 103.35/106.6/110.3", tp1, tp2, tp3)
	}
	if plan.PrimaryMethod != MethodATR {
		t.Fatalf("primary = %s, want %s", plan.PrimaryMethod, MethodATR)
	}
	if math.Abs(plan.Confidence-75) > 1e-9 {
		t.Fatalf("confidence = %v, want mean 75", plan.Confidence)
	}
}

func TestNonFiniteInputsFallBackToPercentage(t *testing.T) {
	in := Input{Direction: models.DirectionLong, Entry: 200, Indicators: models.IndicatorSet{ATR: math.Inf(1)}}
	cand, err := ATR{base: Percentage{Percents: [3]float64{2.5, 4.5, 7}}}.Compute(in)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if cand.TP1 != 205 || cand.Confidence != nonFiniteConfidence || cand.Method != MethodATR {
		t.Fatalf("fallback candidate = %+v", cand)
	}
}

func TestLowConfidenceUsesStaticPlan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Methods = []string{MethodFibonacci}
	cfg.MinConfidence = 90
	c := mustCalculator(t, cfg)
	candles := []models.Candle{{High: 110, Low: 90, Close: 100}, {High: 105, Low: 95, Close: 100}}
	plan, err := c.Calculate(Input{Direction: models.DirectionLong, Entry: 100, Strength: models.StrengthStrong, Confidence: 90, Candles: candles})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	// mean confidence (100 + 65) / 2 is below 90
	if plan.PrimaryMethod != MethodPercentage {
		t.Fatalf("expected static plan, got %s", plan.PrimaryMethod)
	}
	if tp1, _, _ := plan.Prices(); tp1 != 102.5 {
		t.Fatalf("static tp1 = %v", tp1)
	}
}

func TestMultiplier(t *testing.T) {
	tests := []struct {
		s    models.Strength
		conf float64
		want float64
	}{
		{models.StrengthWeak, 30, 0.8 * 0.8},
		{models.StrengthMedium, 75, 1},
		{models.StrengthStrong, 100, 1.2 * 1.2},
	}
	for _, tt := range tests {
		if got := Multiplier(tt.s, tt.conf); math.Abs(got-tt.want) > 1e-12 {
			t.Fatalf("Multiplier(%s, %v) = %v, want %v", tt.s, tt.conf, got, tt.want)
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Methods = []string{"moon_phase"}
	if _, err := NewCalculator(nil, cfg); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}

func TestInvalidEntry(t *testing.T) {
	c := mustCalculator(t, percentOnly())
	if _, err := c.Calculate(Input{Direction: models.DirectionHold, Entry: 100}); err == nil {
		t.Fatalf("HOLD direction accepted")
	}
	if _, err := c.Calculate(Input{Direction: models.DirectionLong, Entry: math.NaN()}); err == nil {
		t.Fatalf("NaN entry accepted")
	}
}
