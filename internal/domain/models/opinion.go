package models

// Recommendation ordered by Priority, bearish first.
type Recommendation string

const (
	StrongSell Recommendation = "STRONG_SELL"
	Sell       Recommendation = "SELL"
	Hold       Recommendation = "HOLD"
	Buy        Recommendation = "BUY"
	StrongBuy  Recommendation = "STRONG_BUY"
)

// Priority maps a recommendation onto 1 (STRONG_SELL) .. 5 (STRONG_BUY).
// Unknown values are treated as HOLD.
func (r Recommendation) Priority() int {
	switch r {
	case StrongSell:
		return 1
	case Sell:
		return 2
	case Buy:
		return 4
	case StrongBuy:
		return 5
	default:
		return 3
	}
}

// Direction returns the trade side the recommendation points at.
func (r Recommendation) Direction() Direction {
	switch r {
	case Buy, StrongBuy:
		return DirectionLong
	case Sell, StrongSell:
		return DirectionShort
	default:
		return DirectionHold
	}
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Score maps LOW/MEDIUM/HIGH onto 1/2/3. Unknown is MEDIUM.
func (r RiskLevel) Score() float64 {
	switch r {
	case RiskLow:
		return 1
	case RiskHigh:
		return 3
	default:
		return 2
	}
}

// RiskFromScore is the inverse of Score after rounding.
func RiskFromScore(s int) RiskLevel {
	switch {
	case s <= 1:
		return RiskLow
	case s >= 3:
		return RiskHigh
	default:
		return RiskMedium
	}
}

type TimeHorizon string

const (
	HorizonShort  TimeHorizon = "SHORT"
	HorizonMedium TimeHorizon = "MEDIUM"
	HorizonLong   TimeHorizon = "LONG"
)

// AIOpinion is one model's view on a symbol.
type AIOpinion struct {
	Source         string         `json:"source"`
	Confidence     float64        `json:"confidence"`
	Recommendation Recommendation `json:"recommendation"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	PriceTarget    *float64       `json:"price_target,omitempty"`
	StopLoss       *float64       `json:"stop_loss,omitempty"`
	TimeHorizon    TimeHorizon    `json:"time_horizon"`
	Reasoning      string         `json:"reasoning"`
	Fallback       bool           `json:"fallback,omitempty"`
}

// NeutralOpinion is substituted when a provider fails or times out.
func NeutralOpinion(source, reason string) AIOpinion {
	return AIOpinion{
		Source:         source,
		Confidence:     50,
		Recommendation: Hold,
		RiskLevel:      RiskMedium,
		TimeHorizon:    HorizonMedium,
		Reasoning:      reason,
		Fallback:       true,
	}
}

// AnalysisContext is the payload sent to opinion providers.
type AnalysisContext struct {
	Symbol     string            `json:"symbol"`
	Ticker     Ticker            `json:"ticker"`
	Indicators IndicatorSet      `json:"indicators"`
	Regime     Regime            `json:"regime"`
	Candidate  DirectionalSignal `json:"candidate"`
}

// SourceContribution records how much one source moved the consensus.
type SourceContribution struct {
	Source         string         `json:"source"`
	Confidence     float64        `json:"confidence"`
	Weight         float64        `json:"weight"`
	Contribution   float64        `json:"contribution"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
	Fallback       bool           `json:"fallback,omitempty"`
}

type ConsensusResult struct {
	Confidence     float64              `json:"confidence"`
	Recommendation Recommendation       `json:"recommendation"`
	RiskLevel      RiskLevel            `json:"risk_level"`
	PriceTarget    *float64             `json:"price_target,omitempty"`
	StopLoss       *float64             `json:"stop_loss,omitempty"`
	TimeHorizon    TimeHorizon          `json:"time_horizon"`
	Breakdown      []SourceContribution `json:"breakdown"`
}
