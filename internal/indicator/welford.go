package indicator

import "math"

// Welford accumulates mean and variance in one pass using Welford's
// online algorithm.
type Welford struct {
	n    int
	mean float64
	m2   float64
}

// Add folds x into the running statistics.
func (w *Welford) Add(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

// Count returns the number of values seen.
func (w *Welford) Count() int { return w.n }

// Mean returns the running mean, or 0 when empty.
func (w *Welford) Mean() float64 { return w.mean }

// PopulationVariance divides by n. Returns 0 when empty.
func (w *Welford) PopulationVariance() float64 {
	if w.n == 0 {
		return 0
	}
	v := w.m2 / float64(w.n)
	if v < 0 {
		return 0
	}
	return v
}

// PopulationStdDev is the square root of PopulationVariance.
func (w *Welford) PopulationStdDev() float64 {
	return math.Sqrt(w.PopulationVariance())
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	var w Welford
	for _, x := range xs {
		w.Add(x)
	}
	return w.Mean()
}

// PopulationStdDev returns the population standard deviation of xs.
func PopulationStdDev(xs []float64) float64 {
	var w Welford
	for _, x := range xs {
		w.Add(x)
	}
	return w.PopulationStdDev()
}
