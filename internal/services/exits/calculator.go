// Package exits builds the three-level take-profit plan attached to a signal.
package exits

import (
	"errors"
	"fmt"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/calc"
	"SignalEngine/pkg/logger"
)

var ErrInvalidInput = errors.New("invalid exit input")

// Clamp bounds as fractions of entry.
const (
	tp1Min     = 0.005
	tp1Max     = 0.15
	tp2Max     = 0.25
	tp3Max     = 0.40
	tp2OverTP1 = 0.01
	tp3OverTP2 = 0.02
)

type Config struct {
	// Methods enabled besides percentage, which always runs.
	Methods           []string
	Percents          [3]float64
	Allocation        [3]float64
	MinConfidence     float64
	StaticFallback    bool
	FibonacciLookback int
}

func DefaultConfig() Config {
	return Config{
		Methods:           []string{MethodVolatility, MethodATR, MethodLevels, MethodFibonacci, MethodRegime},
		Percents:          [3]float64{2.5, 4.5, 7},
		Allocation:        [3]float64{40, 35, 25},
		MinConfidence:     60,
		StaticFallback:    true,
		FibonacciLookback: 50,
	}
}

type Calculator struct {
	lgr        *logger.Logger
	cfg        Config
	percentage Percentage
	methods    []Method
}

// NewCalculator resolves the configured method names. Unknown names are an
// error so typos surface at startup.
func NewCalculator(lgr *logger.Logger, cfg Config) (*Calculator, error) {
	if lgr == nil {
		lgr = logger.Nop()
	}
	c := &Calculator{lgr: lgr, cfg: cfg, percentage: Percentage{Percents: cfg.Percents}}
	for _, name := range cfg.Methods {
		if name == MethodPercentage {
			continue
		}
		f, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("exits: unknown method %q", name)
		}
		c.methods = append(c.methods, f(cfg))
	}
	return c, nil
}

// Calculate runs every method, combines the survivors and validates the
// result. Only a bad entry or direction is an error.
func (c *Calculator) Calculate(in Input) (models.TakeProfitPlan, error) {
	if in.Entry <= 0 || !calc.IsFinite(in.Entry) || in.Direction.Sign() == 0 {
		return models.TakeProfitPlan{}, fmt.Errorf("%w: entry %v direction %q", ErrInvalidInput, in.Entry, in.Direction)
	}

	base, _ := c.percentage.Compute(in)
	candidates := []Candidate{base}
	for _, m := range c.methods {
		m := m
		res := calc.Try(m.Name(), func() (Candidate, error) { return m.Compute(in) })
		if res.OK() {
			res = checkCandidate(res, in)
		}
		if !res.OK() {
			c.lgr.Debug("exit method excluded",
				logger.String("method", m.Name()),
				logger.Error(res.Err),
			)
			continue
		}
		candidates = append(candidates, res.Value)
	}

	plan := c.combine(in, candidates)
	if plan.Confidence < c.cfg.MinConfidence && c.cfg.StaticFallback {
		c.lgr.Debug("dynamic plan below minimum confidence, using percentage plan",
			logger.Float64("confidence", plan.Confidence),
		)
		return c.StaticPlan(in.Entry, in.Direction), nil
	}
	return plan, nil
}

// StaticPlan is the percentage ladder with allocation applied.
func (c *Calculator) StaticPlan(entry float64, dir models.Direction) models.TakeProfitPlan {
	in := Input{Entry: entry, Direction: dir}
	base, _ := c.percentage.Compute(in)
	plan := Validate(base.levels(), entry, dir)
	plan.PrimaryMethod = MethodPercentage
	plan.Confidence = base.Confidence
	c.allocate(&plan)
	return plan
}

// checkCandidate rejects output that is not finite or sits on the wrong side
// of entry.
func checkCandidate(res calc.Result[Candidate], in Input) calc.Result[Candidate] {
	cand := res.Value
	if !calc.IsFinite(cand.TP1, cand.TP2, cand.TP3, cand.Weight, cand.Confidence) {
		return calc.Fail[Candidate](res.Name, calc.ErrNonFinite)
	}
	s := in.Direction.Sign()
	for _, tp := range cand.levels() {
		if (tp-in.Entry)*s <= 0 {
			return calc.Fail[Candidate](res.Name, fmt.Errorf("target %v not beyond entry %v", tp, in.Entry))
		}
	}
	if cand.Weight <= 0 || cand.Confidence <= 0 {
		return calc.Fail[Candidate](res.Name, errors.New("zero weight"))
	}
	return res
}

// Multiplier scales target distance by signal strength and confidence.
func Multiplier(strength models.Strength, confidence float64) float64 {
	sm := 1.0
	switch strength {
	case models.StrengthWeak:
		sm = 0.8
	case models.StrengthStrong:
		sm = 1.2
	}
	return sm * calc.Clamp(confidence/75, 0.8, 1.2)
}

func (c *Calculator) combine(in Input, cands []Candidate) models.TakeProfitPlan {
	var sums [3]float64
	var total, confSum, best float64
	primary := MethodPercentage
	for _, cand := range cands {
		w := cand.Weight * cand.Confidence / 100
		for i, tp := range cand.levels() {
			sums[i] += tp * w
		}
		total += w
		confSum += cand.Confidence
		if w > best {
			best, primary = w, cand.Method
		}
	}

	mult := Multiplier(in.Strength, in.Confidence)
	var levels [3]float64
	for i := range levels {
		agg := sums[i] / total
		levels[i] = in.Entry + (agg-in.Entry)*mult
	}

	plan := Validate(levels, in.Entry, in.Direction)
	plan.PrimaryMethod = primary
	plan.Confidence = confSum / float64(len(cands))
	c.allocate(&plan)
	return plan
}

func (c *Calculator) allocate(plan *models.TakeProfitPlan) {
	for i := range plan.Levels {
		plan.Levels[i].Percent = c.cfg.Allocation[i]
	}
}

// Validate forces strict ordering away from entry and keeps each target
// inside its band. SHORT plans are mirrored.
func Validate(tp [3]float64, entry float64, dir models.Direction) models.TakeProfitPlan {
	for i, v := range tp {
		if !calc.IsFinite(v) {
			tp[i] = entry
		}
	}
	var out [3]float64
	if dir == models.DirectionShort {
		out[0] = calc.Clamp(tp[0], entry*(1-tp1Max), entry*(1-tp1Min))
		out[1] = calc.Clamp(tp[1], entry*(1-tp2Max), out[0]*(1-tp2OverTP1))
		out[2] = calc.Clamp(tp[2], entry*(1-tp3Max), out[1]*(1-tp3OverTP2))
	} else {
		out[0] = calc.Clamp(tp[0], entry*(1+tp1Min), entry*(1+tp1Max))
		out[1] = calc.Clamp(tp[1], out[0]*(1+tp2OverTP1), entry*(1+tp2Max))
		out[2] = calc.Clamp(tp[2], out[1]*(1+tp3OverTP2), entry*(1+tp3Max))
	}
	var plan models.TakeProfitPlan
	for i, v := range out {
		plan.Levels[i].Price = v
	}
	return plan
}
