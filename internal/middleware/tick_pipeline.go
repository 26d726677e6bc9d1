package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
)

// Proc receives ticks that passed the pipeline.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

type ProcFunc func(ctx context.Context, t *models.Tick) error

func (f ProcFunc) Process(ctx context.Context, t *models.Tick) error { return f(ctx, t) }

// TickPipeline sits between the price stream and the price cache. It drops
// malformed ticks and prints that jump too far from the last accepted
// price, thins each symbol to maxRPS, and keeps a bounded replay buffer for
// ticks the cache refused.
type TickPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int
	maxJump float64
	replay  chan *models.Tick
	now     func() time.Time

	mu     sync.Mutex
	last   map[string]acceptedTick
	cancel context.CancelFunc
}

type acceptedTick struct {
	at    time.Time // local receive time, for throttling
	stamp time.Time // exchange time
	price float64
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS limits forwarded ticks per symbol per second. Zero disables.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) { p.maxRPS = n }
}

// WithMaxJump drops ticks more than pct percent away from the previous
// accepted price of the symbol. Zero disables.
func WithMaxJump(pct float64) PipelineOption {
	return func(p *TickPipeline) { p.maxJump = pct }
}

func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.replay = make(chan *models.Tick, n)
		}
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *TickPipeline) { p.now = now }
}

func NewTickPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		proc:    proc,
		metrics: metrics,
		maxRPS:  20,
		maxJump: 20,
		replay:  make(chan *models.Tick, 1000),
		now:     time.Now,
		last:    make(map[string]acceptedTick),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start replays buffered ticks in the background until ctx ends or Stop.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	go p.drain(ctx)
}

func (p *TickPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *TickPipeline) drain(ctx context.Context) {
	const minWait, maxWait = 50 * time.Millisecond, 2 * time.Second
	wait := minWait
	for {
		var t *models.Tick
		select {
		case <-ctx.Done():
			return
		case t = <-p.replay:
		}
		// A replayed tick older than a newer accepted one would move the
		// cached price backwards.
		if p.superseded(t) {
			continue
		}
		if err := p.proc.Process(ctx, t); err == nil {
			wait = minWait
			continue
		}
		p.metrics.RecordError("pipeline_replay")
		p.buffer(t)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if wait *= 2; wait > maxWait {
			wait = maxWait
		}
	}
}

// Process validates, filters and forwards a tick. A downstream failure is
// returned and the tick is queued for replay.
func (p *TickPipeline) Process(ctx context.Context, t *models.Tick) error {
	start := p.now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	switch p.admit(t, start) {
	case verdictThrottled:
		return nil
	case verdictSpike:
		p.metrics.RecordError("pipeline_spike")
		return nil
	}
	p.metrics.RecordLastPrice(t.Symbol, t.Price)

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.buffer(t)
		return fmt.Errorf("price cache %s: %w", t.Symbol, err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

// Buffered returns the number of ticks waiting for replay.
func (p *TickPipeline) Buffered() int { return len(p.replay) }

func (p *TickPipeline) buffer(t *models.Tick) {
	select {
	case p.replay <- t:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

type verdict int

const (
	verdictAccept verdict = iota
	verdictThrottled
	verdictSpike
)

func (p *TickPipeline) admit(t *models.Tick, now time.Time) verdict {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, seen := p.last[t.Symbol]
	if seen && p.maxRPS > 0 && now.Sub(prev.at) < time.Second/time.Duration(p.maxRPS) {
		return verdictThrottled
	}
	if seen && p.maxJump > 0 && math.Abs(t.Price-prev.price)/prev.price*100 > p.maxJump {
		return verdictSpike
	}
	p.last[t.Symbol] = acceptedTick{at: now, stamp: t.Time, price: t.Price}
	return verdictAccept
}

func (p *TickPipeline) superseded(t *models.Tick) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.last[t.Symbol]
	return ok && prev.stamp.After(t.Time)
}

func validateTick(t *models.Tick) error {
	switch {
	case t == nil:
		return fmt.Errorf("tick: nil")
	case t.Symbol == "":
		return fmt.Errorf("tick: empty symbol")
	case t.Time.IsZero():
		return fmt.Errorf("tick %s: missing timestamp", t.Symbol)
	case t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0):
		return fmt.Errorf("tick %s: invalid price %v", t.Symbol, t.Price)
	}
	return nil
}
