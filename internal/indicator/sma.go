package indicator

import "fmt"

// RollingSMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer. The running sum is rebuilt from the
// buffer every time the write position wraps, so add/subtract rounding error
// cannot accumulate across long series.
type RollingSMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewRollingSMA creates a rolling SMA with the given period.
func NewRollingSMA(period int) *RollingSMA {
	return &RollingSMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *RollingSMA) Name() string { return fmt.Sprintf("SMA_%d", s.period) }

func (s *RollingSMA) Update(price float64) {
	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.idx == 0 {
		s.sum = 0
		for _, v := range s.buf {
			s.sum += v
		}
	}

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *RollingSMA) Value() float64 { return s.current }
func (s *RollingSMA) Ready() bool    { return s.count >= s.period }

// SMA returns the simple moving average of every full window of period
// prices, earliest window first. The result has len(prices)-period+1 values,
// or is empty when there are fewer than period prices.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}
	out := make([]float64, 0, len(prices)-period+1)
	s := NewRollingSMA(period)
	for _, p := range prices {
		s.Update(p)
		if s.Ready() {
			out = append(out, s.Value())
		}
	}
	return out
}
