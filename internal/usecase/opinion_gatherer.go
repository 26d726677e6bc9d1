package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	domsvc "SignalEngine/internal/domain/service"
	svcmetrics "SignalEngine/internal/service/metrics"
	"SignalEngine/internal/service/ratelimit"
	"SignalEngine/pkg/logger"
)

type GathererOption func(*OpinionGatherer)

// WithProviderTimeout overrides the call timeout for one provider.
func WithProviderTimeout(name string, d time.Duration) GathererOption {
	return func(g *OpinionGatherer) {
		if d > 0 {
			g.timeouts[name] = d
		}
	}
}

// WithRateLimit throttles calls per provider with a token bucket.
func WithRateLimit(l *ratelimit.Limiter, perSecond float64, burst int) GathererOption {
	return func(g *OpinionGatherer) {
		g.limiter = l
		g.rate = perSecond
		g.burst = float64(burst)
	}
}

// OpinionGatherer asks every provider concurrently. A provider that fails,
// times out or panics contributes a neutral opinion instead.
type OpinionGatherer struct {
	providers []domsvc.AIOpinionProvider
	timeout   time.Duration
	timeouts  map[string]time.Duration
	limiter   *ratelimit.Limiter
	rate      float64
	burst     float64
	metrics   domrepo.Metrics
	lgr       *logger.Logger
}

func NewOpinionGatherer(providers []domsvc.AIOpinionProvider, timeout time.Duration, metrics domrepo.Metrics, lgr *logger.Logger, opts ...GathererOption) *OpinionGatherer {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	g := &OpinionGatherer{
		providers: providers,
		timeout:   timeout,
		timeouts:  make(map[string]time.Duration),
		metrics:   metrics,
		lgr:       lgr.Component("opinions"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Providers returns the configured provider names.
func (g *OpinionGatherer) Providers() []string {
	out := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		out = append(out, p.Name())
	}
	return out
}

// Gather returns one opinion per provider in provider order. It never blocks
// longer than the largest provider timeout.
func (g *OpinionGatherer) Gather(ctx context.Context, in models.AnalysisContext) []models.AIOpinion {
	out := make([]models.AIOpinion, len(g.providers))
	var wg sync.WaitGroup
	for i, p := range g.providers {
		wg.Add(1)
		go func(i int, p domsvc.AIOpinionProvider) {
			defer wg.Done()
			out[i] = g.ask(ctx, p, in)
		}(i, p)
	}
	wg.Wait()
	return out
}

func (g *OpinionGatherer) timeoutFor(name string) time.Duration {
	if d, ok := g.timeouts[name]; ok {
		return d
	}
	return g.timeout
}

func (g *OpinionGatherer) ask(ctx context.Context, p domsvc.AIOpinionProvider, in models.AnalysisContext) models.AIOpinion {
	name := p.Name()
	cctx, cancel := context.WithTimeout(ctx, g.timeoutFor(name))
	defer cancel()

	start := time.Now()
	defer func() {
		svcmetrics.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	if g.limiter != nil && g.rate > 0 {
		if err := g.limiter.Wait(cctx, "ai:"+name, g.burst, g.rate); err != nil {
			return g.fallback(name, "rate_limited", err)
		}
	}

	type result struct {
		op  models.AIOpinion
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		o, err := p.Analyze(cctx, in)
		ch <- result{op: o, err: err}
	}()

	select {
	case <-cctx.Done():
		return g.fallback(name, "timeout", cctx.Err())
	case r := <-ch:
		if r.err != nil {
			cause := "error"
			if errors.Is(r.err, context.DeadlineExceeded) {
				cause = "timeout"
			}
			return g.fallback(name, cause, r.err)
		}
		if r.op.Source == "" {
			r.op.Source = name
		}
		return r.op
	}
}

func (g *OpinionGatherer) fallback(name, cause string, err error) models.AIOpinion {
	svcmetrics.ProviderFallbacks.WithLabelValues(name, cause).Inc()
	g.metrics.RecordError("ai_" + cause)
	g.lgr.Warn("opinion provider failed, using neutral opinion",
		logger.String("provider", name),
		logger.String("cause", cause),
		logger.Error(err),
	)
	return models.NeutralOpinion(name, fmt.Sprintf("%s: %v", cause, err))
}
