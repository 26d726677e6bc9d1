package repository

import "time"

// Timeframe is a candle resolution. The string form is the exchange kline
// interval.
type Timeframe string

const (
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
}

// Valid reports whether the analyzer works with tf.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration of one bar, zero for unknown timeframes.
func (tf Timeframe) Duration() time.Duration { return timeframeDurations[tf] }

// BarsPerDay is used to scale per-bar volatility to a daily figure.
func (tf Timeframe) BarsPerDay() float64 {
	d := tf.Duration()
	if d <= 0 {
		return 0
	}
	return float64(24*time.Hour) / float64(d)
}
