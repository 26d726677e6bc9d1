package models

import "time"

// Query parameters for the status API.

type SignalsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,symbol"`
	Status string `query:"status" json:"status" validate:"omitempty,oneof=GENERATED EXECUTED EXPIRED REJECTED"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
	// From and To switch the query to the journal. RFC3339 or unix time.
	From string `query:"from" json:"from"`
	To   string `query:"to" json:"to"`
}

type PositionsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,symbol"`
}

type DedupRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
}

// DedupSnapshot is the guard's view of a symbol.
type DedupSnapshot struct {
	Symbol     string         `json:"symbol"`
	Lock       *SignalLock    `json:"lock,omitempty"`
	Recent     []RecentSignal `json:"recent"`
	DailyKey   string         `json:"daily_key"`
	DailyCount int            `json:"daily_count"`
}

// RecentSignal is one entry of the per-symbol history.
type RecentSignal struct {
	Time       time.Time `json:"time"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
}
