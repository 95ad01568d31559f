// Package indicator provides technical indicator calculations over price series.
//
// Rolling indicators implement the Indicator interface and consume one price
// at a time. The batch functions (SMA, RSI) drive them over a whole window and
// return every value produced, earliest first. Everything here is pure and
// safe to use from multiple goroutines as long as instances are not shared.
package indicator

// DefaultRSIPeriod is the conventional Wilder RSI lookback.
const DefaultRSIPeriod = 14

// Indicator is the interface for rolling technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "RSI_14").
	Name() string

	// Update feeds the next price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
