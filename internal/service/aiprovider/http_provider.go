package aiprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"SignalEngine/internal/domain/models"
	domsvc "SignalEngine/internal/domain/service"
	"SignalEngine/internal/service/cache"
	"SignalEngine/pkg/config"
	"SignalEngine/pkg/logger"
)

const analyzePath = "/analyze"

// request is the body posted to an opinion endpoint.
type request struct {
	Model   string                 `json:"model,omitempty"`
	Context models.AnalysisContext `json:"context"`
}

// response is deliberately loose: endpoints disagree on casing and on
// whether confidence is a ratio or a percentage.
type response struct {
	Confidence     float64  `json:"confidence"`
	Recommendation string   `json:"recommendation"`
	RiskLevel      string   `json:"risk_level"`
	PriceTarget    *float64 `json:"price_target"`
	StopLoss       *float64 `json:"stop_loss"`
	TimeHorizon    string   `json:"time_horizon"`
	Reasoning      string   `json:"reasoning"`
}

type Option func(*HTTPProvider)

// WithCache stores parsed opinions for ttl, keyed by symbol and candidate direction.
func WithCache(c cache.BytesCache, ttl time.Duration) Option {
	return func(p *HTTPProvider) {
		p.cache = c
		p.cacheTTL = ttl
	}
}

func WithAttempts(n int) Option { return func(p *HTTPProvider) { p.attempts = n } }

// HTTPProvider asks a remote model for an opinion.
type HTTPProvider struct {
	name     string
	model    string
	base     *httpBase
	attempts int
	cache    cache.BytesCache
	cacheTTL time.Duration
	lgr      *logger.Logger
}

func NewHTTPProvider(cfg config.AIProviderConfig, lgr *logger.Logger, opts ...Option) *HTTPProvider {
	p := &HTTPProvider{
		name:     cfg.Name,
		model:    cfg.Model,
		base:     newHTTPBase(cfg.URL, cfg.APIKey, cfg.Timeout),
		attempts: 2,
		lgr:      lgr,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Analyze(ctx context.Context, in models.AnalysisContext) (models.AIOpinion, error) {
	key := p.cacheKey(in)
	if p.cache != nil {
		if b, ok, err := p.cache.GetBytes(ctx, key); err == nil && ok {
			var op models.AIOpinion
			if json.Unmarshal(b, &op) == nil {
				return op, nil
			}
		}
	}

	var resp response
	if err := p.base.postJSONWithRetry(ctx, analyzePath, request{Model: p.model, Context: in}, &resp, p.attempts); err != nil {
		return models.AIOpinion{}, fmt.Errorf("%s analyze %s: %w", p.name, in.Symbol, err)
	}
	op, err := p.normalize(resp)
	if err != nil {
		return models.AIOpinion{}, fmt.Errorf("%s analyze %s: %w", p.name, in.Symbol, err)
	}

	if p.cache != nil {
		if b, err := json.Marshal(op); err == nil {
			if err := p.cache.SetBytes(ctx, key, b, p.cacheTTL); err != nil && p.lgr != nil {
				p.lgr.Debug("opinion cache write failed", logger.String("provider", p.name), logger.Error(err))
			}
		}
	}
	return op, nil
}

func (p *HTTPProvider) cacheKey(in models.AnalysisContext) string {
	return "opinion:" + p.name + ":" + in.Symbol + ":" + string(in.Candidate.Direction)
}

func (p *HTTPProvider) normalize(r response) (models.AIOpinion, error) {
	if math.IsNaN(r.Confidence) || math.IsInf(r.Confidence, 0) {
		return models.AIOpinion{}, fmt.Errorf("non-finite confidence")
	}
	conf := r.Confidence
	if conf > 0 && conf <= 1 {
		conf *= 100
	}
	rec, ok := ParseRecommendation(r.Recommendation)
	if !ok {
		return models.AIOpinion{}, fmt.Errorf("unknown recommendation %q", r.Recommendation)
	}
	return models.AIOpinion{
		Source:         p.name,
		Confidence:     math.Max(0, math.Min(100, conf)),
		Recommendation: rec,
		RiskLevel:      ParseRisk(r.RiskLevel),
		PriceTarget:    positive(r.PriceTarget),
		StopLoss:       positive(r.StopLoss),
		TimeHorizon:    ParseHorizon(r.TimeHorizon),
		Reasoning:      r.Reasoning,
	}, nil
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func canon(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// ParseRecommendation accepts e.g. "strong buy", "STRONG-BUY", "Buy".
func ParseRecommendation(s string) (models.Recommendation, bool) {
	switch r := models.Recommendation(canon(s)); r {
	case models.StrongSell, models.Sell, models.Hold, models.Buy, models.StrongBuy:
		return r, true
	}
	return models.Hold, false
}

func ParseRisk(s string) models.RiskLevel {
	switch r := models.RiskLevel(canon(s)); r {
	case models.RiskLow, models.RiskHigh:
		return r
	}
	return models.RiskMedium
}

func ParseHorizon(s string) models.TimeHorizon {
	switch h := models.TimeHorizon(canon(s)); h {
	case models.HorizonShort, models.HorizonLong:
		return h
	}
	return models.HorizonMedium
}

var _ domsvc.AIOpinionProvider = (*HTTPProvider)(nil)
