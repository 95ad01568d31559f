package indicator

import "fmt"

// WilderRSI calculates the Relative Strength Index using Wilder's smoothing.
// Update is O(1) per price.
type WilderRSI struct {
	period    int
	count     int
	prevPrice float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewWilderRSI creates a rolling RSI with the given period (typically 14).
func NewWilderRSI(period int) *WilderRSI {
	return &WilderRSI{period: period}
}

func (r *WilderRSI) Name() string { return fmt.Sprintf("RSI_%d", r.period) }

func (r *WilderRSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		r.prevPrice = price
		return
	}

	delta := price - r.prevPrice
	r.prevPrice = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Seed phase: plain mean of the first period gains and losses.
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiValue(r.avgGain, r.avgLoss)
		}
		return
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiValue(r.avgGain, r.avgLoss)
}

func (r *WilderRSI) Value() float64 { return r.current }
func (r *WilderRSI) Ready() bool    { return r.count > r.period }

// seeded reports whether the value just produced is the seed value.
func (r *WilderRSI) seeded() bool { return r.count == r.period+1 }

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSI returns the Wilder RSI series for prices, one value per price after
// the first period deltas. It is empty when len(prices) < period+1.
//
// When the seed average loss is zero the series is exactly [100] and no
// smoothing is applied to the remaining prices.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period+1 {
		return []float64{}
	}
	out := make([]float64, 0, len(prices)-period)
	r := NewWilderRSI(period)
	for _, p := range prices {
		r.Update(p)
		if !r.Ready() {
			continue
		}
		out = append(out, r.Value())
		if r.seeded() && r.avgLoss == 0 {
			return out
		}
	}
	return out
}
