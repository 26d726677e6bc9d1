package usecase

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/services/dedup"
)

func TestAssembleAcceptsAndRegisters(t *testing.T) {
	f := newFixture(t, agree(models.Buy, 80), nil)

	sig, rej := f.asm.Assemble(context.Background(), "BTCUSDT")
	if rej != nil {
		t.Fatalf("unexpected rejection: %s", rej)
	}
	if sig.Direction != models.DirectionLong || sig.Status != models.SignalGenerated {
		t.Fatalf("signal = %s %s", sig.Direction, sig.Status)
	}
	if math.Abs(sig.Confidence-82.5) > 1e-9 {
		t.Fatalf("confidence = %v, want 82.5", sig.Confidence)
	}
	if sig.Strength != models.StrengthStrong {
		t.Fatalf("strength = %s", sig.Strength)
	}
	if math.Abs(sig.EntryPrice-99.9) > 1e-9 {
		t.Fatalf("entry = %v, want 99.9", sig.EntryPrice)
	}
	if math.Abs(sig.StopLoss-99.9*0.98) > 1e-9 {
		t.Fatalf("stop = %v, want static 2%%", sig.StopLoss)
	}
	tp1, tp2, tp3 := sig.TakeProfit.Prices()
	if !(sig.EntryPrice < tp1 && tp1 < tp2 && tp2 < tp3) {
		t.Fatalf("take profit not ordered: %v %v %v", tp1, tp2, tp3)
	}
	if sig.RiskReward < 1.5 {
		t.Fatalf("risk/reward = %v", sig.RiskReward)
	}
	if math.Abs(sig.MaxLoss-100) > 1e-6 {
		t.Fatalf("max loss = %v, want 1%% of 10000", sig.MaxLoss)
	}
	if sig.Context.Regime != models.RegimeBull || !sig.Context.Estimated || len(sig.Context.Consensus) == 0 {
		t.Fatalf("context = %+v", sig.Context)
	}
	if !f.guard.HasActiveLock("BTCUSDT") {
		t.Fatalf("accepted signal must register a lock")
	}
	if snap := f.guard.Snapshot("BTCUSDT"); snap.DailyCount != 1 || len(snap.Recent) != 1 {
		t.Fatalf("guard snapshot = %+v", snap)
	}
}

func TestAssembleRejectsWhileLocked(t *testing.T) {
	f := newFixture(t, agree(models.Buy, 80), nil)
	if _, rej := f.asm.Assemble(context.Background(), "BTCUSDT"); rej != nil {
		t.Fatalf("first: %s", rej)
	}

	_, rej := f.asm.Assemble(context.Background(), "BTCUSDT")
	if rej == nil || rej.Stage != models.StageDedup || rej.Reason != dedup.ReasonTooSoon {
		t.Fatalf("second = %+v, want too soon", rej)
	}

	f.clock.advance(10 * time.Minute)
	_, rej = f.asm.Assemble(context.Background(), "BTCUSDT")
	if rej == nil || rej.Reason != dedup.ReasonLocked {
		t.Fatalf("third = %+v, want locked", rej)
	}

	f.clock.advance(31 * time.Minute)
	if _, rej = f.asm.Assemble(context.Background(), "BTCUSDT"); rej != nil {
		t.Fatalf("after lock and window expiry: %s", rej)
	}
}

func TestAssembleRejections(t *testing.T) {
	tests := []struct {
		name   string
		ops    OpinionSource
		mutate func(*AssemblerConfig)
		snap   *models.MarketSnapshot
		symbol string
		stage  string
	}{
		{
			name:   "market data missing",
			ops:    agree(models.Buy, 80),
			symbol: "ETHUSDT",
			stage:  models.StageMarket,
		},
		{
			name:  "no technical direction",
			ops:   agree(models.Buy, 80),
			snap:  &models.MarketSnapshot{Ticker: models.Ticker{Symbol: "BTCUSDT", Price: 100}},
			stage: models.StageTechnical,
		},
		{
			name:  "consensus below minimum plus buffer",
			ops:   agree(models.Hold, 50),
			stage: models.StageConsensus,
		},
		{
			name:  "consensus conflicts with direction",
			ops:   agree(models.Sell, 95),
			stage: models.StageConsensus,
		},
		{
			name:   "technical minimum",
			ops:    agree(models.Buy, 80),
			mutate: func(c *AssemblerConfig) { c.TechnicalMinimum = 95 },
			stage:  models.StageTechnical,
		},
		{
			name:   "max loss cap",
			ops:    agree(models.Buy, 80),
			mutate: func(c *AssemblerConfig) { c.MaxLoss = 50 },
			stage:  models.StageRisk,
		},
		{
			name:   "risk reward minimum",
			ops:    agree(models.Buy, 80),
			mutate: func(c *AssemblerConfig) { c.MinRiskReward = 10 },
			stage:  models.StageRisk,
		},
		{
			name:   "minimum notional",
			ops:    agree(models.Buy, 80),
			mutate: func(c *AssemblerConfig) { c.MinNotional = 1e7 },
			stage:  models.StageRisk,
		},
		{
			name: "higher timeframe against",
			ops:  agree(models.Buy, 80),
			snap: &models.MarketSnapshot{
				Ticker:  bullTicker("BTCUSDT"),
				Candles: models.CandleSet{H4: fallingCandles(40, 200)},
			},
			stage: models.StageTimeframe,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.ops, tc.mutate)
			if tc.snap != nil {
				f.loader.snaps["BTCUSDT"] = *tc.snap
			}
			symbol := tc.symbol
			if symbol == "" {
				symbol = "BTCUSDT"
			}
			sig, rej := f.asm.Assemble(context.Background(), symbol)
			if sig != nil {
				t.Fatalf("expected rejection, got signal %+v", sig)
			}
			if rej == nil || rej.Stage != tc.stage || rej.Reason == "" {
				t.Fatalf("rejection = %+v, want stage %s", rej, tc.stage)
			}
			if f.guard.HasActiveLock(symbol) {
				t.Fatalf("rejected candidate must not register")
			}
		})
	}
}

func TestAssembleMultiTimeframeDisabled(t *testing.T) {
	f := newFixture(t, agree(models.Buy, 80), func(c *AssemblerConfig) { c.MultiTimeframe = false })
	f.loader.snaps["BTCUSDT"] = models.MarketSnapshot{
		Ticker:  bullTicker("BTCUSDT"),
		Candles: models.CandleSet{H4: fallingCandles(40, 200)},
	}
	if _, rej := f.asm.Assemble(context.Background(), "BTCUSDT"); rej != nil {
		t.Fatalf("gate disabled, got %s", rej)
	}
}

func TestAssembleUsesConsensusStopOnProtectiveSide(t *testing.T) {
	stop := 98.5
	ops := opinionFunc(func(in models.AnalysisContext) []models.AIOpinion {
		out := agree(models.Buy, 80)(in)
		out[0].StopLoss = &stop
		return out
	})
	f := newFixture(t, ops, nil)
	sig, rej := f.asm.Assemble(context.Background(), "BTCUSDT")
	if rej != nil {
		t.Fatalf("rejected: %s", rej)
	}
	if sig.StopLoss != stop {
		t.Fatalf("stop = %v, want consensus %v", sig.StopLoss, stop)
	}
}

func TestCounterTrend(t *testing.T) {
	if !counterTrend(models.DirectionLong, models.RegimeBear) || !counterTrend(models.DirectionShort, models.RegimeBull) {
		t.Fatalf("against-regime trades must be counter trend")
	}
	if counterTrend(models.DirectionLong, models.RegimeBull) || counterTrend(models.DirectionLong, models.RegimeSideways) {
		t.Fatalf("with-regime trades are not counter trend")
	}
}

func TestAssembleBatchSortsByConfidence(t *testing.T) {
	ops := opinionFunc(func(in models.AnalysisContext) []models.AIOpinion {
		if in.Symbol == "SOLUSDT" {
			return agree(models.StrongBuy, 95)(in)
		}
		return agree(models.Buy, 80)(in)
	})
	f := newFixture(t, ops, nil)
	f.loader.snaps["SOLUSDT"] = models.MarketSnapshot{Ticker: bullTicker("SOLUSDT")}

	accepted, rejected := f.asm.AssembleBatch(context.Background(), []string{"BTCUSDT", "SOLUSDT", "XRPUSDT"}, 2)
	if len(accepted) != 2 || len(rejected) != 1 {
		t.Fatalf("accepted %d rejected %d", len(accepted), len(rejected))
	}
	if accepted[0].Symbol != "SOLUSDT" || accepted[0].Confidence < accepted[1].Confidence {
		t.Fatalf("order = %s %s", accepted[0].Symbol, accepted[1].Symbol)
	}
	if rejected[0].Symbol != "XRPUSDT" || !strings.Contains(rejected[0].Reason, "XRPUSDT") {
		t.Fatalf("rejection = %+v", rejected[0])
	}
}
