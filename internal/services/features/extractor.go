package features

import (
	"math"

	"SignalEngine/internal/domain/models"
)

// LogReturns computes r_t = ln(C_t / C_{t-1}). Non-positive closes yield 0.
// It returns nil if there are fewer than two candles.
func LogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility returns the sample deviation of the last window returns
// scaled by sqrt(barsPerDay), as a percentage. Zero if the window is short.
func RealizedVolatility(logReturns []float64, window int, barsPerDay float64) float64 {
	if window > len(logReturns) {
		window = len(logReturns)
	}
	if window <= 1 {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance*barsPerDay) * 100
}
