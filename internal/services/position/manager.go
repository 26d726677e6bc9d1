// Package position owns open positions from fill to close: partial profit
// taking, trailing stop and final stop-out.
package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"SignalEngine/internal/domain/models"
	domsvc "SignalEngine/internal/domain/service"
	"SignalEngine/internal/services/calc"
	"SignalEngine/pkg/logger"
)

var (
	ErrNotExecuted    = errors.New("signal not executed")
	ErrPositionExists = errors.New("position already open for symbol")
	ErrNotFound       = errors.New("position not found")
	ErrTickInFlight   = errors.New("tick already in flight")
	ErrInvalidFill    = errors.New("invalid fill")
)

type Config struct {
	// TrailingPercent is the trail distance from the best price. Zero
	// disables trailing.
	TrailingPercent float64
	// TakerFee is a fraction, e.g. 0.0004.
	TakerFee   float64
	Allocation [3]float64
	// QuantityStep is the lot size slice quantities are floored to.
	QuantityStep float64
}

func DefaultConfig() Config {
	return Config{
		TrailingPercent: 3,
		TakerFee:        0.0004,
		Allocation:      [3]float64{40, 35, 25},
		QuantityStep:    1,
	}
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithNotifier(n domsvc.NotificationSink) Option {
	return func(m *Manager) { m.notify = n }
}

type tracked struct {
	inFlight atomic.Bool
	mu       sync.Mutex
	pos      models.Position
	realized decimal.Decimal
}

type Manager struct {
	lgr    *logger.Logger
	cfg    Config
	now    func() time.Time
	notify domsvc.NotificationSink

	mu        sync.RWMutex
	positions map[string]*tracked
}

func NewManager(lgr *logger.Logger, cfg Config, opts ...Option) *Manager {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if cfg.QuantityStep <= 0 {
		cfg.QuantityStep = 1
	}
	m := &Manager{
		lgr:       lgr,
		cfg:       cfg,
		now:       time.Now,
		positions: make(map[string]*tracked),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SliceQuantity floors original·pct/100 to the lot step.
func (m *Manager) SliceQuantity(original, pct float64) float64 {
	step := decimal.NewFromFloat(m.cfg.QuantityStep)
	raw := decimal.NewFromFloat(original).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	return raw.Div(step).Floor().Mul(step).InexactFloat64()
}

// Open creates a position from an EXECUTED signal. A symbol holds at most one
// open position.
func (m *Manager) Open(sig *models.Signal, fill, qty float64) (models.Position, error) {
	if sig == nil || sig.Status != models.SignalExecuted {
		return models.Position{}, ErrNotExecuted
	}
	if fill <= 0 || qty <= 0 || !calc.IsFinite(fill, qty) {
		return models.Position{}, fmt.Errorf("%w: price %v qty %v", ErrInvalidFill, fill, qty)
	}

	pos := models.Position{
		SignalID:          sig.ID,
		Symbol:            sig.Symbol,
		Direction:         sig.Direction,
		OriginalQuantity:  qty,
		RemainingQuantity: qty,
		EntryPrice:        fill,
		StopLoss: models.StopLoss{
			Price:        sig.StopLoss,
			Trailing:     m.cfg.TrailingPercent > 0,
			TrailPercent: m.cfg.TrailingPercent,
			ExtremePrice: fill,
		},
		TakeProfit: sig.TakeProfit,
		LastPrice:  fill,
		Status:     models.PositionActive,
		OpenedAt:   m.now(),
	}
	for i := range pos.TakeProfit.Levels {
		lv := &pos.TakeProfit.Levels[i]
		if lv.Percent == 0 {
			lv.Percent = m.cfg.Allocation[i]
		}
		lv.Quantity = m.SliceQuantity(qty, lv.Percent)
		lv.Executed = false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[sig.Symbol]; ok {
		return models.Position{}, fmt.Errorf("%w: %s", ErrPositionExists, sig.Symbol)
	}
	m.positions[sig.Symbol] = &tracked{pos: pos, realized: decimal.Zero}
	m.lgr.Info("position opened",
		logger.String("symbol", pos.Symbol),
		logger.String("direction", string(pos.Direction)),
		logger.Float64("entry", fill),
		logger.Float64("quantity", qty),
	)
	return pos, nil
}

// Get returns a copy of the open position for symbol.
func (m *Manager) Get(symbol string) (models.Position, bool) {
	m.mu.RLock()
	t, ok := m.positions[symbol]
	m.mu.RUnlock()
	if !ok {
		return models.Position{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos, true
}

// Active returns copies of every open position sorted by symbol.
func (m *Manager) Active() []models.Position {
	m.mu.RLock()
	list := make([]*tracked, 0, len(m.positions))
	for _, t := range m.positions {
		list = append(list, t)
	}
	m.mu.RUnlock()

	out := make([]models.Position, 0, len(list))
	for _, t := range list {
		t.mu.Lock()
		out = append(out, t.pos)
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols lists symbols with an open position.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type notification struct {
	stop   bool
	level  int
	amount float64
	pos    models.Position
}

// Tick applies one price observation. Overlapping ticks for the same symbol
// return ErrTickInFlight instead of waiting. A position that reaches STOPPED
// or COMPLETED is removed from the active set.
func (m *Manager) Tick(ctx context.Context, symbol string, price float64) (models.Position, []models.PositionEvent, error) {
	m.mu.RLock()
	t, ok := m.positions[symbol]
	m.mu.RUnlock()
	if !ok {
		return models.Position{}, nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	if price <= 0 || !calc.IsFinite(price) {
		return models.Position{}, nil, fmt.Errorf("tick %s: invalid price %v", symbol, price)
	}
	if !t.inFlight.CompareAndSwap(false, true) {
		return models.Position{}, nil, ErrTickInFlight
	}
	defer t.inFlight.Store(false)

	t.mu.Lock()
	events, notes := m.apply(t, price)
	pos := t.pos
	t.mu.Unlock()

	if pos.Status.Closed() {
		m.mu.Lock()
		if cur, ok := m.positions[symbol]; ok && cur == t {
			delete(m.positions, symbol)
		}
		m.mu.Unlock()
	}
	m.dispatch(ctx, notes)
	return pos, events, nil
}

func (m *Manager) apply(t *tracked, price float64) ([]models.PositionEvent, []notification) {
	p := &t.pos
	if p.Status.Closed() {
		return nil, nil
	}
	now := m.now()
	sign := p.Direction.Sign()
	feeKeep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(m.cfg.TakerFee))
	var events []models.PositionEvent
	var notes []notification

	slicePnL := func(exit, qty float64) decimal.Decimal {
		return decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(p.EntryPrice)).
			Mul(decimal.NewFromFloat(qty)).Mul(decimal.NewFromFloat(sign)).Mul(feeKeep)
	}
	event := func(kind string, level int, px, qty float64, pnl decimal.Decimal) {
		events = append(events, models.PositionEvent{
			Symbol: p.Symbol, SignalID: p.SignalID, Kind: kind, Level: level,
			Price: px, Quantity: qty, PnL: pnl.InexactFloat64(), Time: now,
		})
	}

	p.LastPrice = price

	if p.StopLoss.Trailing {
		m.trail(p, price, func(stop float64) { event(models.EventTrailed, 0, stop, 0, decimal.Zero) })
	}

	for i := range p.TakeProfit.Levels {
		lv := &p.TakeProfit.Levels[i]
		if lv.Executed {
			continue
		}
		if (price-lv.Price)*sign < 0 || p.RemainingQuantity <= 0 {
			break
		}
		qty := math.Min(lv.Quantity, p.RemainingQuantity)
		if qty <= 0 {
			// The slice floored to nothing. The level counts as reached but
			// nothing was sold.
			lv.Executed = true
			continue
		}
		pnl := slicePnL(lv.Price, qty)
		t.realized = t.realized.Add(pnl)
		p.RemainingQuantity = decimal.NewFromFloat(p.RemainingQuantity).Sub(decimal.NewFromFloat(qty)).InexactFloat64()
		lv.Executed = true
		p.RealizedPnL = t.realized.InexactFloat64()
		event(models.EventTakeProfit, i+1, lv.Price, qty, pnl)
		notes = append(notes, notification{level: i + 1, amount: pnl.InexactFloat64()})
	}

	if p.RemainingQuantity > 0 && (p.StopLoss.Price-price)*sign >= 0 && p.StopLoss.Price > 0 {
		qty := p.RemainingQuantity
		pnl := slicePnL(price, qty)
		t.realized = t.realized.Add(pnl)
		p.RemainingQuantity = 0
		p.RealizedPnL = t.realized.InexactFloat64()
		p.Status = models.PositionStopped
		event(models.EventStopLoss, 0, price, qty, pnl)
		notes = append(notes, notification{stop: true, amount: pnl.InexactFloat64()})
	}

	p.UnrealizedPnL = decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.EntryPrice)).
		Mul(decimal.NewFromFloat(sign)).Mul(decimal.NewFromFloat(p.RemainingQuantity)).Mul(feeKeep).InexactFloat64()

	p.Status = nextStatus(*p)
	if p.Status == models.PositionCompleted {
		event(models.EventCompleted, 0, price, 0, t.realized)
	}
	if p.Status.Closed() {
		p.ClosedAt = now
	}
	for i := range events {
		events[i].Status = p.Status
	}
	for i := range notes {
		notes[i].pos = *p
	}
	return events, notes
}

// trail moves the stop toward price when a new extreme is made. It never
// loosens the stop.
func (m *Manager) trail(p *models.Position, price float64, moved func(float64)) {
	trail := p.StopLoss.TrailPercent / 100
	switch p.Direction {
	case models.DirectionLong:
		if price <= p.StopLoss.ExtremePrice {
			return
		}
		p.StopLoss.ExtremePrice = price
		if next := price * (1 - trail); next > p.StopLoss.Price {
			p.StopLoss.Price = next
			moved(next)
		}
	case models.DirectionShort:
		if price >= p.StopLoss.ExtremePrice {
			return
		}
		p.StopLoss.ExtremePrice = price
		if next := price * (1 + trail); next < p.StopLoss.Price || p.StopLoss.Price <= 0 {
			p.StopLoss.Price = next
			moved(next)
		}
	}
}

// nextStatus: STOPPED is terminal, COMPLETED needs every level executed and
// nothing left, PARTIAL means at least one level fired.
func nextStatus(p models.Position) models.PositionStatus {
	if p.Status == models.PositionStopped {
		return p.Status
	}
	executed := 0
	for _, lv := range p.TakeProfit.Levels {
		if lv.Executed {
			executed++
		}
	}
	switch {
	case executed == len(p.TakeProfit.Levels) && p.RemainingQuantity == 0:
		return models.PositionCompleted
	case executed > 0:
		return models.PositionPartial
	default:
		return models.PositionActive
	}
}

// dispatch delivers notifications without letting a sink affect state.
func (m *Manager) dispatch(ctx context.Context, notes []notification) {
	if m.notify == nil {
		return
	}
	for _, n := range notes {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.lgr.Warn("notification sink panicked",
						logger.String("symbol", n.pos.Symbol),
						logger.Any("panic", r),
					)
				}
			}()
			if n.stop {
				m.notify.OnStopLoss(ctx, n.pos, n.amount)
			} else {
				m.notify.OnTakeProfit(ctx, n.pos, n.level, n.amount)
			}
		}()
	}
}
