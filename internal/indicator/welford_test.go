package indicator

import (
	"math"
	"testing"
)

func TestWelford_MatchesTwoPass(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	// Population mean 5, population std dev 2.
	assertClose(t, "mean", Mean(xs), 5, 1e-12)
	assertClose(t, "std", PopulationStdDev(xs), 2, 1e-12)
}

func TestWelford_Empty(t *testing.T) {
	var w Welford
	if w.Count() != 0 || w.Mean() != 0 || w.PopulationStdDev() != 0 {
		t.Errorf("zero value should report zeros, got n=%d mean=%f std=%f",
			w.Count(), w.Mean(), w.PopulationStdDev())
	}
	if Mean(nil) != 0 {
		t.Errorf("Mean(nil) = %f", Mean(nil))
	}
}

func TestWelford_ConstantSeriesIsExactlyZero(t *testing.T) {
	xs := make([]float64, 500)
	for i := range xs {
		xs[i] = 50123.45
	}
	if sd := PopulationStdDev(xs); sd != 0 {
		t.Errorf("constant series std = %g, want exactly 0", sd)
	}
}

func TestWelford_LargeOffsetStable(t *testing.T) {
	// Naive sum-of-squares loses all precision at this offset.
	const offset = 1e9
	xs := []float64{offset + 4, offset + 7, offset + 13, offset + 16}
	// Deviations from mean 10: -6, -3, 3, 6 → variance 22.5
	assertClose(t, "std at offset", PopulationStdDev(xs), math.Sqrt(22.5), 1e-6)
}
