package models

import (
	"math"
	"time"
)

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid reports whether every field is finite and the bar is well formed.
func (c Candle) Valid() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return c.Close > 0 && c.High >= c.Low
}

// Ticker carries 24h statistics for a symbol.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	Volume24h float64   `json:"volume_24h"`
	High24h   float64   `json:"high_24h"`
	Low24h    float64   `json:"low_24h"`
	Count     int64     `json:"count"`
	Synthetic bool      `json:"synthetic,omitempty"`
	Time      time.Time `json:"time"`
}

// CandleSet groups the three timeframes the analyzer looks at.
type CandleSet struct {
	H4  []Candle
	H1  []Candle
	M15 []Candle
}

// MarketSnapshot is what the assembler needs for one symbol.
type MarketSnapshot struct {
	Ticker  Ticker
	Candles CandleSet
}

// Tick is a streamed last-price update.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

type Regime string

const (
	RegimeBull     Regime = "BULL"
	RegimeBear     Regime = "BEAR"
	RegimeSideways Regime = "SIDEWAYS"
	RegimeUnknown  Regime = "UNKNOWN"
)
