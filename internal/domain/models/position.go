package models

import "time"

type PositionStatus string

const (
	PositionActive    PositionStatus = "ACTIVE"
	PositionPartial   PositionStatus = "PARTIAL"
	PositionStopped   PositionStatus = "STOPPED"
	PositionCompleted PositionStatus = "COMPLETED"
)

// Closed reports whether the status is terminal.
func (s PositionStatus) Closed() bool {
	return s == PositionStopped || s == PositionCompleted
}

// StopLoss tracks the protective stop. ExtremePrice is the best price seen
// since open, used by the trailing logic.
type StopLoss struct {
	Price        float64 `json:"price"`
	Trailing     bool    `json:"trailing"`
	TrailPercent float64 `json:"trail_percent"`
	ExtremePrice float64 `json:"extreme_price"`
}

// Position is an open trade owned by the lifecycle manager.
type Position struct {
	SignalID          string         `json:"signal_id"`
	Symbol            string         `json:"symbol"`
	Direction         Direction      `json:"direction"`
	OriginalQuantity  float64        `json:"original_quantity"`
	RemainingQuantity float64        `json:"remaining_quantity"`
	EntryPrice        float64        `json:"entry_price"`
	StopLoss          StopLoss       `json:"stop_loss"`
	TakeProfit        TakeProfitPlan `json:"take_profit"`
	RealizedPnL       float64        `json:"realized_pnl"`
	UnrealizedPnL     float64        `json:"unrealized_pnl"`
	LastPrice         float64        `json:"last_price"`
	Status            PositionStatus `json:"status"`
	OpenedAt          time.Time      `json:"opened_at"`
	ClosedAt          time.Time      `json:"closed_at,omitempty"`
}

// PositionEvent is emitted on every state change worth journaling.
type PositionEvent struct {
	Symbol   string         `json:"symbol"`
	SignalID string         `json:"signal_id"`
	Kind     string         `json:"kind"`
	Level    int            `json:"level,omitempty"`
	Price    float64        `json:"price"`
	Quantity float64        `json:"quantity"`
	PnL      float64        `json:"pnl"`
	Status   PositionStatus `json:"status"`
	Time     time.Time      `json:"time"`
}

// Event kinds.
const (
	EventOpened     = "opened"
	EventTakeProfit = "take_profit"
	EventStopLoss   = "stop_loss"
	EventTrailed    = "trailed"
	EventCompleted  = "completed"
)

// ExecutionReport arrives from the execution venue once a signal is filled.
type ExecutionReport struct {
	SignalID  string  `json:"signal_id"`
	FillPrice float64 `json:"fill_price"`
	Quantity  float64 `json:"quantity"`
}
