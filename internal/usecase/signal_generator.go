package usecase

import (
	"context"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/dedup"
	"SignalEngine/pkg/logger"
)

// BatchAssembler produces accepted signals for a set of symbols.
type BatchAssembler interface {
	AssembleBatch(ctx context.Context, symbols []string, concurrency int) ([]*models.Signal, []*models.Rejection)
}

// SignalGenerator is the periodic generation job. Each pass assembles every
// symbol, then publishes, journals and books the accepted signals.
type SignalGenerator struct {
	asm         BatchAssembler
	book        *SignalBook
	disp        *SignalDispatcher
	guard       *dedup.Store
	lgr         *logger.Logger
	symbols     []string
	concurrency int
	interval    time.Duration
	prune       time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSignalGenerator(asm BatchAssembler, book *SignalBook, disp *SignalDispatcher, guard *dedup.Store, lgr *logger.Logger, symbols []string, concurrency int, interval, prune time.Duration) *SignalGenerator {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if prune <= 0 {
		prune = 10 * time.Minute
	}
	return &SignalGenerator{
		asm:         asm,
		book:        book,
		disp:        disp,
		guard:       guard,
		lgr:         lgr.Component("generator"),
		symbols:     symbols,
		concurrency: concurrency,
		interval:    interval,
		prune:       prune,
		stopCh:      make(chan struct{}),
	}
}

// RunOnce runs a single generation pass and returns the accepted signals by
// descending confidence. Output failures are logged, not returned.
func (g *SignalGenerator) RunOnce(ctx context.Context, symbols []string) []*models.Signal {
	start := time.Now()
	accepted, rejected := g.asm.AssembleBatch(ctx, symbols, g.concurrency)
	if len(accepted) > 0 {
		g.book.Add(accepted...)
		if err := g.disp.DispatchSignals(ctx, accepted); err != nil {
			g.lgr.Warn("dispatch signals failed",
				logger.Int("signals", len(accepted)),
				logger.Error(err),
			)
		}
	}
	g.lgr.Info("generation pass finished",
		logger.Int("symbols", len(symbols)),
		logger.Int("accepted", len(accepted)),
		logger.Int("rejected", len(rejected)),
		logger.Duration("took", time.Since(start)),
	)
	return accepted
}

// Housekeep expires unfilled signals and prunes guard state.
func (g *SignalGenerator) Housekeep() {
	for _, s := range g.book.Expire() {
		g.lgr.Debug("signal expired",
			logger.String("symbol", s.Symbol),
			logger.String("id", s.ID),
		)
	}
	g.guard.Prune()
}

// Start runs a pass immediately, then on every interval until Stop or ctx
// cancellation.
func (g *SignalGenerator) Start(ctx context.Context) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		gen := time.NewTicker(g.interval)
		defer gen.Stop()
		prune := time.NewTicker(g.prune)
		defer prune.Stop()

		g.RunOnce(ctx, g.symbols)
		for {
			select {
			case <-ctx.Done():
				return
			case <-g.stopCh:
				return
			case <-gen.C:
				g.RunOnce(ctx, g.symbols)
			case <-prune.C:
				g.Housekeep()
			}
		}
	}()
}

func (g *SignalGenerator) Stop() {
	select {
	case <-g.stopCh:
	default:
		close(g.stopCh)
	}
	g.wg.Wait()
}
