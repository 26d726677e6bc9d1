package models

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a proposed trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionHold  Direction = "HOLD"
)

// Sign returns +1 for LONG, -1 for SHORT and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

type Strength string

const (
	StrengthWeak   Strength = "WEAK"
	StrengthMedium Strength = "MEDIUM"
	StrengthStrong Strength = "STRONG"
)

type SignalStatus string

const (
	SignalGenerated SignalStatus = "GENERATED"
	SignalExecuted  SignalStatus = "EXECUTED"
	SignalExpired   SignalStatus = "EXPIRED"
	SignalRejected  SignalStatus = "REJECTED"
)

// TPLevel is one rung of the take-profit ladder. Percent is the share of the
// original quantity closed at Price.
type TPLevel struct {
	Price    float64 `json:"price"`
	Percent  float64 `json:"percent"`
	Quantity float64 `json:"quantity"`
	Executed bool    `json:"executed"`
}

// TakeProfitPlan holds three ordered exit levels.
type TakeProfitPlan struct {
	Levels        [3]TPLevel `json:"levels"`
	PrimaryMethod string     `json:"primary_method"`
	Confidence    float64    `json:"confidence"`
}

// Prices returns tp1, tp2, tp3.
func (p TakeProfitPlan) Prices() (float64, float64, float64) {
	return p.Levels[0].Price, p.Levels[1].Price, p.Levels[2].Price
}

// MarketContext is the snapshot of conditions a signal was produced under.
type MarketContext struct {
	Regime      Regime               `json:"regime"`
	Price       float64              `json:"price"`
	Change24h   float64              `json:"change_24h"`
	Volatility  float64              `json:"volatility"`
	RSI         float64              `json:"rsi"`
	VolumeRatio float64              `json:"volume_ratio"`
	Estimated   bool                 `json:"estimated"`
	Technical   float64              `json:"technical_confidence"`
	Consensus   []SourceContribution `json:"consensus,omitempty"`
	Reasoning   []string             `json:"reasoning,omitempty"`
}

// Signal is a proposed trade pending execution. Only Status changes after
// the assembler returns it.
type Signal struct {
	ID             string         `json:"id"`
	Symbol         string         `json:"symbol"`
	Direction      Direction      `json:"direction"`
	Strength       Strength       `json:"strength"`
	Confidence     float64        `json:"confidence"`
	EntryPrice     float64        `json:"entry_price"`
	StopLoss       float64        `json:"stop_loss"`
	TakeProfit     TakeProfitPlan `json:"take_profit"`
	PositionSize   float64        `json:"position_size"`
	RiskReward     float64        `json:"risk_reward"`
	MaxLoss        float64        `json:"max_loss"`
	MaxGain        float64        `json:"max_gain"`
	Recommendation Recommendation `json:"recommendation"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	TimeHorizon    TimeHorizon    `json:"time_horizon"`
	Context        MarketContext  `json:"context"`
	CreatedAt      time.Time      `json:"created_at"`
	Status         SignalStatus   `json:"status"`
}

// NewSignal returns a GENERATED signal with a fresh id.
func NewSignal(symbol string, dir Direction, now time.Time) *Signal {
	return &Signal{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Direction: dir,
		CreatedAt: now,
		Status:    SignalGenerated,
	}
}

// Expire marks a GENERATED signal EXPIRED once ttl has passed. It reports
// whether the status changed.
func (s *Signal) Expire(now time.Time, ttl time.Duration) bool {
	if s.Status != SignalGenerated || now.Sub(s.CreatedAt) < ttl {
		return false
	}
	s.Status = SignalExpired
	return true
}

// SignalLock blocks new signals for a symbol until it expires.
type SignalLock struct {
	Symbol    string        `json:"symbol"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
	Signal    Signal        `json:"signal"`
}

// Active reports whether the lock still holds at now.
func (l SignalLock) Active(now time.Time) bool {
	return now.Sub(l.CreatedAt) < l.TTL
}

// Rejection explains why a candidate was dropped. It is a value, not an error.
type Rejection struct {
	Symbol string `json:"symbol"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

func (r *Rejection) String() string {
	return r.Symbol + " rejected at " + r.Stage + ": " + r.Reason
}

// Rejection stages.
const (
	StageMarket    = "market"
	StageDedup     = "dedup"
	StageTechnical = "technical"
	StageConsensus = "consensus"
	StageRisk      = "risk"
	StageRegime    = "regime"
	StageTimeframe = "timeframe"
)
