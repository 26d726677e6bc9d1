package technical

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	"SignalEngine/internal/services/features"
)

// ErrInsufficientData is returned when a series is shorter than the period.
var ErrInsufficientData = errors.New("insufficient data")

func closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// validCandles drops malformed bars, keeping order.
func validCandles(candles []models.Candle) []models.Candle {
	out := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

// emaSeries seeds with the SMA of the first period values.
func emaSeries(values []float64, period int) ([]float64, error) {
	if period <= 0 || len(values) < period {
		return nil, fmt.Errorf("ema(%d) over %d values: %w", period, len(values), ErrInsufficientData)
	}
	k := 2.0 / float64(period+1)
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	out := make([]float64, 0, len(values)-period+1)
	ema := sum / float64(period)
	out = append(out, ema)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
		out = append(out, ema)
	}
	return out, nil
}

// EMA returns the last value of the exponential moving average.
func EMA(values []float64, period int) (float64, error) {
	s, err := emaSeries(values, period)
	if err != nil {
		return 0, err
	}
	return s[len(s)-1], nil
}

// RSI uses Wilder smoothing.
func RSI(values []float64, period int) (float64, error) {
	if len(values) < period+1 {
		return 0, fmt.Errorf("rsi(%d): %w", period, ErrInsufficientData)
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		up, down := 0.0, 0.0
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		gain = (gain*float64(period-1) + up) / float64(period)
		loss = (loss*float64(period-1) + down) / float64(period)
	}
	if loss == 0 {
		if gain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rs := gain / loss
	return 100 - 100/(1+rs), nil
}

// MACDOf computes the 12/26/9 MACD.
func MACDOf(values []float64) (models.MACD, error) {
	fast, err := emaSeries(values, 12)
	if err != nil {
		return models.MACD{}, err
	}
	slow, err := emaSeries(values, 26)
	if err != nil {
		return models.MACD{}, err
	}
	// align: slow starts 14 values after fast
	offset := len(fast) - len(slow)
	line := make([]float64, len(slow))
	for i := range slow {
		line[i] = fast[i+offset] - slow[i]
	}
	sig, err := emaSeries(line, 9)
	if err != nil {
		return models.MACD{}, err
	}
	l, s := line[len(line)-1], sig[len(sig)-1]
	return models.MACD{Line: l, Signal: s, Histogram: l - s}, nil
}

// BollingerOf returns SMA(period) ± mult·σ.
func BollingerOf(values []float64, period int, mult float64) (*models.Bollinger, error) {
	if len(values) < period {
		return nil, fmt.Errorf("bollinger(%d): %w", period, ErrInsufficientData)
	}
	window := values[len(values)-period:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)
	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(variance / float64(period))
	return &models.Bollinger{Upper: mean + mult*sd, Middle: mean, Lower: mean - mult*sd}, nil
}

// ATR uses Wilder smoothing of the true range.
func ATR(candles []models.Candle, period int) (float64, error) {
	if len(candles) < period+1 {
		return 0, fmt.Errorf("atr(%d): %w", period, ErrInsufficientData)
	}
	tr := func(i int) float64 {
		c, prev := candles[i], candles[i-1].Close
		return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
	}
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += tr(i)
	}
	atr /= float64(period)
	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + tr(i)) / float64(period)
	}
	return atr, nil
}

// Volatility is the daily-scaled realized volatility of the last 48 hourly
// bars, in percent.
func Volatility(candles []models.Candle) (float64, error) {
	rets := features.LogReturns(candles)
	if len(rets) < 2 {
		return 0, fmt.Errorf("volatility: %w", ErrInsufficientData)
	}
	return features.RealizedVolatility(rets, 48, domrepo.TF1h.BarsPerDay()), nil
}

// Momentum is the percent change over period bars.
func Momentum(values []float64, period int) (float64, error) {
	if len(values) <= period {
		return 0, fmt.Errorf("momentum(%d): %w", period, ErrInsufficientData)
	}
	base := values[len(values)-1-period]
	if base == 0 {
		return 0, fmt.Errorf("momentum: zero base price")
	}
	return (values[len(values)-1] - base) / base * 100, nil
}

// VolumeRatio compares the last bar's volume with the mean of the period
// bars before it.
func VolumeRatio(candles []models.Candle, period int) (float64, error) {
	if len(candles) < period+1 {
		return 0, fmt.Errorf("volume ratio(%d): %w", period, ErrInsufficientData)
	}
	prev := candles[len(candles)-1-period : len(candles)-1]
	avg := 0.0
	for _, c := range prev {
		avg += c.Volume
	}
	avg /= float64(period)
	if avg == 0 {
		return 1, nil
	}
	return candles[len(candles)-1].Volume / avg, nil
}

// Pivots finds swing lows below price (nearest first) and swing highs above
// price (nearest first). A swing point is an extreme over two bars each side.
func Pivots(candles []models.Candle, price float64, max int) (support, resistance []float64) {
	const span = 2
	for i := span; i < len(candles)-span; i++ {
		hi, lo := true, true
		for j := i - span; j <= i+span; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				hi = false
			}
			if candles[j].Low <= candles[i].Low {
				lo = false
			}
		}
		if hi && candles[i].High > price {
			resistance = append(resistance, candles[i].High)
		}
		if lo && candles[i].Low < price {
			support = append(support, candles[i].Low)
		}
	}
	if len(support) == 0 || len(resistance) == 0 {
		lowest, highest := math.Inf(1), math.Inf(-1)
		for _, c := range candles {
			lowest = math.Min(lowest, c.Low)
			highest = math.Max(highest, c.High)
		}
		if len(support) == 0 && lowest < price {
			support = append(support, lowest)
		}
		if len(resistance) == 0 && highest > price && !math.IsInf(highest, 0) {
			resistance = append(resistance, highest)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(support)))
	sort.Float64s(resistance)
	if len(support) > max {
		support = support[:max]
	}
	if len(resistance) > max {
		resistance = resistance[:max]
	}
	return support, resistance
}

// SwingRange returns the highest high and lowest low of the last n bars.
func SwingRange(candles []models.Candle, n int) (high, low float64, err error) {
	if len(candles) == 0 {
		return 0, 0, fmt.Errorf("swing range: %w", ErrInsufficientData)
	}
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	high, low = candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	return high, low, nil
}
