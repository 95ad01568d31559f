package model

import "time"

// MarketSample is one price/volume observation for a symbol.
// Windows of samples are always handled in ascending timestamp order.
type MarketSample struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the sample can be fed to the signal engine.
func (s MarketSample) Valid() bool {
	return s.Symbol != "" && s.Price > 0 && s.Volume >= 0 && !s.Timestamp.IsZero()
}

// MarketData is a sample enriched with the indicator snapshot computed over
// the window that ends at it. Nil indicator fields mean the window was too
// short and are encoded as JSON null.
type MarketData struct {
	Symbol             string    `json:"symbol"`
	Price              float64   `json:"price"`
	Volume             float64   `json:"volume"`
	Timestamp          time.Time `json:"timestamp"`
	SMA20              *float64  `json:"sma_20"`
	SMA50              *float64  `json:"sma_50"`
	RSI                *float64  `json:"rsi"`
	MomentumScore      *float64  `json:"momentum_score"`
	MeanReversionScore *float64  `json:"mean_reversion_score"`
}

// Prices extracts the price series of a window.
func Prices(window []MarketSample) []float64 {
	out := make([]float64, len(window))
	for i, s := range window {
		out[i] = s.Price
	}
	return out
}

// Volumes extracts the volume series of a window.
func Volumes(window []MarketSample) []float64 {
	out := make([]float64, len(window))
	for i, s := range window {
		out[i] = s.Volume
	}
	return out
}

// Float returns a pointer to v, for populating optional indicator fields.
func Float(v float64) *float64 { return &v }
