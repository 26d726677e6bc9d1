package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	"SignalEngine/internal/services/position"
	"SignalEngine/pkg/logger"
)

// PositionMonitor is the periodic monitoring job. Every open position gets
// its own tick per pass; the manager serializes ticks per position.
type PositionMonitor struct {
	mgr      *position.Manager
	prices   domrepo.PriceSource
	disp     *SignalDispatcher
	metrics  domrepo.Metrics
	lgr      *logger.Logger
	interval time.Duration
	timeout  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPositionMonitor(mgr *position.Manager, prices domrepo.PriceSource, disp *SignalDispatcher, metrics domrepo.Metrics, lgr *logger.Logger, interval, timeout time.Duration) *PositionMonitor {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PositionMonitor{
		mgr:      mgr,
		prices:   prices,
		disp:     disp,
		metrics:  metrics,
		lgr:      lgr.Component("monitor"),
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Tick runs one monitoring pass and returns the positions that closed.
func (m *PositionMonitor) Tick(ctx context.Context) []models.Position {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		closed []models.Position
	)
	for _, sym := range m.mgr.Symbols() {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			if p, ok := m.tickOne(ctx, sym); ok {
				mu.Lock()
				closed = append(closed, p)
				mu.Unlock()
			}
		}(sym)
	}
	wg.Wait()
	return closed
}

func (m *PositionMonitor) tickOne(ctx context.Context, symbol string) (models.Position, bool) {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	price, err := m.prices.LastPrice(cctx, symbol)
	if err != nil {
		m.metrics.RecordError("monitor_price")
		m.lgr.Warn("no price for open position",
			logger.String("symbol", symbol),
			logger.Error(err),
		)
		return models.Position{}, false
	}

	pos, events, err := m.mgr.Tick(ctx, symbol, price)
	switch {
	case errors.Is(err, position.ErrTickInFlight), errors.Is(err, position.ErrNotFound):
		m.lgr.Debug("tick skipped", logger.String("symbol", symbol), logger.Error(err))
		return models.Position{}, false
	case err != nil:
		m.metrics.RecordError("monitor_tick")
		m.lgr.Warn("tick failed", logger.String("symbol", symbol), logger.Error(err))
		return models.Position{}, false
	}

	if err := m.disp.DispatchEvents(ctx, events); err != nil {
		m.lgr.Warn("dispatch events failed", logger.String("symbol", symbol), logger.Error(err))
	}
	if !pos.Status.Closed() {
		return pos, false
	}
	if err := m.disp.StorePosition(ctx, pos); err != nil {
		m.lgr.Warn("journal closed position failed", logger.String("symbol", symbol), logger.Error(err))
	}
	m.lgr.Info("position closed",
		logger.String("symbol", symbol),
		logger.String("status", string(pos.Status)),
		logger.Float64("realized_pnl", pos.RealizedPnL),
	)
	return pos, true
}

func (m *PositionMonitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-t.C:
				m.Tick(ctx)
			}
		}
	}()
}

func (m *PositionMonitor) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	m.wg.Wait()
}
