package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	"SignalEngine/internal/services/consensus"
	"SignalEngine/internal/services/dedup"
	"SignalEngine/internal/services/exits"
	"SignalEngine/internal/services/technical"
	"SignalEngine/pkg/logger"
)

// SnapshotLoader returns market data for one symbol.
type SnapshotLoader interface {
	Load(ctx context.Context, symbol string) (models.MarketSnapshot, error)
}

// OpinionSource collects model opinions for a candidate.
type OpinionSource interface {
	Gather(ctx context.Context, in models.AnalysisContext) []models.AIOpinion
}

// AssemblerConfig holds the quality gate thresholds and sizing inputs.
type AssemblerConfig struct {
	MinConfidence         float64
	ConfidenceBuffer      float64
	TechnicalMinimum      float64
	CounterTrendMinimum   float64
	MinRiskReward         float64
	StaticStopLossPercent float64
	MultiTimeframe        bool
	RejectConflicts       bool

	AccountBalance      float64
	RiskPerTradePercent float64
	MinNotional         float64
	MaxLoss             float64
}

func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		MinConfidence:         60,
		ConfidenceBuffer:      5,
		TechnicalMinimum:      55,
		CounterTrendMinimum:   80,
		MinRiskReward:         1.5,
		StaticStopLossPercent: 2,
		MultiTimeframe:        true,
		RejectConflicts:       true,
		AccountBalance:        10000,
		RiskPerTradePercent:   1,
		MinNotional:           10,
		MaxLoss:               250,
	}
}

type AssemblerOption func(*SignalAssembler)

func WithAssemblerClock(now func() time.Time) AssemblerOption {
	return func(a *SignalAssembler) { a.now = now }
}

// SignalAssembler runs one symbol through analysis, consensus, exit planning,
// sizing and the quality gates. Rejections are values, never errors.
type SignalAssembler struct {
	cfg      AssemblerConfig
	loader   SnapshotLoader
	analyzer *technical.Analyzer
	opinions OpinionSource
	engine   *consensus.Engine
	exits    *exits.Calculator
	guard    *dedup.Store
	metrics  domrepo.Metrics
	lgr      *logger.Logger
	now      func() time.Time
}

func NewSignalAssembler(
	cfg AssemblerConfig,
	loader SnapshotLoader,
	analyzer *technical.Analyzer,
	opinions OpinionSource,
	engine *consensus.Engine,
	calc *exits.Calculator,
	guard *dedup.Store,
	metrics domrepo.Metrics,
	lgr *logger.Logger,
	opts ...AssemblerOption,
) *SignalAssembler {
	if lgr == nil {
		lgr = logger.Nop()
	}
	a := &SignalAssembler{
		cfg:      cfg,
		loader:   loader,
		analyzer: analyzer,
		opinions: opinions,
		engine:   engine,
		exits:    calc,
		guard:    guard,
		metrics:  metrics,
		lgr:      lgr.Component("assembler"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *SignalAssembler) reject(symbol, stage, reason string) *models.Rejection {
	a.metrics.RecordRejection(stage)
	a.lgr.Info("candidate rejected",
		logger.String("symbol", symbol),
		logger.String("stage", stage),
		logger.String("reason", reason),
	)
	return &models.Rejection{Symbol: symbol, Stage: stage, Reason: reason}
}

// Assemble returns either an accepted, registered signal or the reason the
// symbol produced none.
func (a *SignalAssembler) Assemble(ctx context.Context, symbol string) (*models.Signal, *models.Rejection) {
	start := a.now()
	defer func() { a.metrics.RecordLatency("assemble", a.now().Sub(start).Seconds()) }()

	if a.guard.TooSoon(symbol) {
		return nil, a.reject(symbol, models.StageDedup, dedup.ReasonTooSoon)
	}
	if a.guard.HasActiveLock(symbol) {
		return nil, a.reject(symbol, models.StageDedup, dedup.ReasonLocked)
	}

	snap, err := a.loader.Load(ctx, symbol)
	if err != nil {
		return nil, a.reject(symbol, models.StageMarket, err.Error())
	}

	ind := a.analyzer.ComputeIndicators(snap.Candles, snap.Ticker)
	regime := technical.DetectRegime(ind)
	cand := a.analyzer.GenerateDirectionalSignal(ind, regime)
	switch {
	case cand.Direction == models.DirectionHold:
		return nil, a.reject(symbol, models.StageTechnical, "no direction: "+strings.Join(cand.Reasoning, "; "))
	case cand.Strength == models.StrengthWeak:
		return nil, a.reject(symbol, models.StageTechnical, fmt.Sprintf("weak candidate (%.1f)", cand.Confidence))
	case cand.Confidence < a.cfg.TechnicalMinimum:
		return nil, a.reject(symbol, models.StageTechnical,
			fmt.Sprintf("technical confidence %.1f below %.0f", cand.Confidence, a.cfg.TechnicalMinimum))
	}

	opinions := a.opinions.Gather(ctx, models.AnalysisContext{
		Symbol:     symbol,
		Ticker:     snap.Ticker,
		Indicators: ind,
		Regime:     regime,
		Candidate:  cand,
	})
	res := a.engine.Combine(opinions, cand.Confidence, ind.Volatility)
	a.metrics.RecordConsensus(symbol, res.Confidence)

	if need := a.cfg.MinConfidence + a.cfg.ConfidenceBuffer; res.Confidence < need {
		return nil, a.reject(symbol, models.StageConsensus,
			fmt.Sprintf("consensus confidence %.1f below %.0f", res.Confidence, need))
	}
	if a.cfg.RejectConflicts && res.Recommendation.Direction().Sign()*cand.Direction.Sign() < 0 {
		return nil, a.reject(symbol, models.StageConsensus,
			fmt.Sprintf("consensus %s conflicts with %s", res.Recommendation, cand.Direction))
	}

	sig := a.build(symbol, snap, ind, regime, cand, res)

	if sig.RiskReward < a.cfg.MinRiskReward {
		return nil, a.reject(symbol, models.StageRisk,
			fmt.Sprintf("risk/reward %.2f below %.2f", sig.RiskReward, a.cfg.MinRiskReward))
	}
	if a.cfg.MaxLoss > 0 && sig.MaxLoss > a.cfg.MaxLoss {
		return nil, a.reject(symbol, models.StageRisk,
			fmt.Sprintf("max loss %.2f above cap %.2f", sig.MaxLoss, a.cfg.MaxLoss))
	}
	if notional := sig.PositionSize * sig.EntryPrice; notional < a.cfg.MinNotional {
		return nil, a.reject(symbol, models.StageRisk,
			fmt.Sprintf("notional %.2f below minimum %.2f", notional, a.cfg.MinNotional))
	}
	if counterTrend(sig.Direction, regime) && sig.Confidence < a.cfg.CounterTrendMinimum {
		return nil, a.reject(symbol, models.StageRegime,
			fmt.Sprintf("%s against %s regime needs %.0f, got %.1f", sig.Direction, regime, a.cfg.CounterTrendMinimum, sig.Confidence))
	}
	if a.cfg.MultiTimeframe {
		if tf, against := a.opposingTimeframe(snap.Candles, sig.Direction); against {
			return nil, a.reject(symbol, models.StageTimeframe, tf+" trend opposes "+string(sig.Direction))
		}
	}

	if reason, ok := a.guard.Admit(ctx, sig); !ok {
		return nil, a.reject(symbol, models.StageDedup, reason)
	}

	a.metrics.RecordSignal(symbol, sig.Direction)
	a.lgr.Info("signal accepted",
		logger.String("symbol", symbol),
		logger.String("id", sig.ID),
		logger.String("direction", string(sig.Direction)),
		logger.Float64("confidence", sig.Confidence),
		logger.Float64("entry", sig.EntryPrice),
		logger.Float64("stop", sig.StopLoss),
		logger.Float64("rr", sig.RiskReward),
	)
	return sig, nil
}

func (a *SignalAssembler) build(symbol string, snap models.MarketSnapshot, ind models.IndicatorSet, regime models.Regime, cand models.DirectionalSignal, res models.ConsensusResult) *models.Signal {
	dir := cand.Direction
	entry := cand.EntryPrice
	sig := models.NewSignal(symbol, dir, a.now())
	sig.Confidence = res.Confidence
	sig.Strength = technical.StrengthFor(res.Confidence)
	sig.EntryPrice = entry
	sig.StopLoss = a.stopLoss(entry, dir, res.StopLoss)
	sig.Recommendation = res.Recommendation
	sig.RiskLevel = res.RiskLevel
	sig.TimeHorizon = res.TimeHorizon

	plan, err := a.exits.Calculate(exits.Input{
		Direction:  dir,
		Entry:      entry,
		Strength:   sig.Strength,
		Confidence: sig.Confidence,
		Indicators: ind,
		Candles:    snap.Candles.H1,
		Regime:     regime,
		Sentiment:  sentiment(res.Recommendation),
	})
	if err != nil {
		a.lgr.Debug("exit plan failed, using static plan",
			logger.String("symbol", symbol),
			logger.Error(err),
		)
		plan = a.exits.StaticPlan(entry, dir)
	}
	sig.TakeProfit = plan

	risk := math.Abs(entry - sig.StopLoss)
	if risk > 0 {
		sig.PositionSize = a.cfg.AccountBalance * a.cfg.RiskPerTradePercent / 100 / risk
		_, tp2, tp3 := plan.Prices()
		sig.MaxLoss = sig.PositionSize * risk
		sig.MaxGain = sig.PositionSize * math.Abs(tp3-entry)
		sig.RiskReward = math.Abs(tp2-entry) / risk
	}
	for i := range sig.TakeProfit.Levels {
		sig.TakeProfit.Levels[i].Quantity = sig.PositionSize * sig.TakeProfit.Levels[i].Percent / 100
	}

	sig.Context = models.MarketContext{
		Regime:      regime,
		Price:       ind.Price,
		Change24h:   ind.Change24h,
		Volatility:  ind.Volatility,
		RSI:         ind.RSI,
		VolumeRatio: ind.VolumeRatio,
		Estimated:   ind.Estimated || snap.Ticker.Synthetic,
		Technical:   cand.Confidence,
		Consensus:   res.Breakdown,
		Reasoning:   cand.Reasoning,
	}
	return sig
}

// stopLoss takes the consensus stop when it sits on the protective side of
// entry, else the static percentage.
func (a *SignalAssembler) stopLoss(entry float64, dir models.Direction, proposed *float64) float64 {
	if proposed != nil && *proposed > 0 && (entry-*proposed)*dir.Sign() > 0 {
		return *proposed
	}
	return entry * (1 - dir.Sign()*a.cfg.StaticStopLossPercent/100)
}

func (a *SignalAssembler) opposingTimeframe(set models.CandleSet, dir models.Direction) (string, bool) {
	for _, tf := range []struct {
		name    string
		candles []models.Candle
	}{
		{string(domrepo.TF4h), set.H4},
		{string(domrepo.TF15m), set.M15},
	} {
		if t := technical.Trend(tf.candles); t.Sign()*dir.Sign() < 0 {
			return tf.name, true
		}
	}
	return "", false
}

func counterTrend(dir models.Direction, regime models.Regime) bool {
	return (dir == models.DirectionLong && regime == models.RegimeBear) ||
		(dir == models.DirectionShort && regime == models.RegimeBull)
}

// sentiment maps the recommendation onto [-1, 1].
func sentiment(r models.Recommendation) float64 {
	return float64(r.Priority()-3) / 2
}

// AssembleBatch runs symbols concurrently and returns accepted signals by
// descending confidence.
func (a *SignalAssembler) AssembleBatch(ctx context.Context, symbols []string, concurrency int) ([]*models.Signal, []*models.Rejection) {
	if concurrency <= 0 {
		concurrency = 1
	}
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		accepted []*models.Signal
		rejected []*models.Rejection
	)
	sem := make(chan struct{}, concurrency)
	for _, sym := range symbols {
		select {
		case <-ctx.Done():
			mu.Lock()
			rejected = append(rejected, &models.Rejection{Symbol: sym, Stage: models.StageMarket, Reason: ctx.Err().Error()})
			mu.Unlock()
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()
			sig, rej := a.Assemble(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if sig != nil {
				accepted = append(accepted, sig)
			} else if rej != nil {
				rejected = append(rejected, rej)
			}
		}(sym)
	}
	wg.Wait()
	SortByConfidence(accepted)
	return accepted, rejected
}

// SortByConfidence orders signals by descending confidence, then symbol.
func SortByConfidence(signals []*models.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Confidence != signals[j].Confidence {
			return signals[i].Confidence > signals[j].Confidence
		}
		return signals[i].Symbol < signals[j].Symbol
	})
}
