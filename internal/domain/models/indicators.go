package models

type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

type EMAs struct {
	EMA9   float64 `json:"ema9"`
	EMA21  float64 `json:"ema21"`
	EMA50  float64 `json:"ema50"`
	EMA200 float64 `json:"ema200"`
}

// IndicatorSet is always populated. Estimated is set when it was derived
// from the ticker alone because candle history was short.
type IndicatorSet struct {
	Price          float64    `json:"price"`
	Change24h      float64    `json:"change_24h"`
	RSI            float64    `json:"rsi"`
	MACD           MACD       `json:"macd"`
	EMA            EMAs       `json:"ema"`
	Bollinger      *Bollinger `json:"bollinger,omitempty"`
	ATR            float64    `json:"atr"`
	VolumeRatio    float64    `json:"volume_ratio"`
	Volatility     float64    `json:"volatility"`
	Momentum       float64    `json:"momentum"`
	Support        []float64  `json:"support"`
	Resistance     []float64  `json:"resistance"`
	TechnicalScore float64    `json:"technical_score"`
	Estimated      bool       `json:"estimated"`
}

// DirectionalSignal is the analyzer's candidate before consensus.
type DirectionalSignal struct {
	Direction  Direction `json:"direction"`
	Strength   Strength  `json:"strength"`
	Confidence float64   `json:"confidence"`
	EntryPrice float64   `json:"entry_price"`
	Reasoning  []string  `json:"reasoning"`
}
