// Package strategy classifies sample windows into trade setups.
//
// MomentumSignal and MeanReversionSignal score a window on four conditions
// each, IdentifySetup turns the two scores into a risk-defined TradeSetup
// and InvalidationZones computes the band outside of which the thesis is
// void. Engine runs these over per-symbol rolling windows for a live feed.
package strategy

import (
	"math"

	"traffic-light/internal/indicator"
	"traffic-light/internal/model"
)

const (
	fastPeriod = 20
	slowPeriod = 50

	rsiLow  = 30.0
	rsiHigh = 70.0

	deviationThreshold = 0.02
	velocityThreshold  = 0.01
	velocitySteps      = 5
)

// Scores are accumulated in tenths so label thresholds compare exactly.
const (
	pointsTrend     = 3
	pointsCrossover = 3
	pointsRSI       = 2
	pointsVolume    = 2
	pointsDeviation = 3
	pointsExtreme   = 3
	pointsVelocity  = 2
)

// features holds everything the classifiers read from one window.
type features struct {
	prices     []float64
	volumes    []float64
	sma20      []float64
	sma50      []float64
	rsi        []float64
	meanVolume float64
}

func extract(window []model.MarketSample) features {
	prices := model.Prices(window)
	volumes := model.Volumes(window)
	return features{
		prices:     prices,
		volumes:    volumes,
		sma20:      indicator.SMA(prices, fastPeriod),
		sma50:      indicator.SMA(prices, slowPeriod),
		rsi:        indicator.RSI(prices, indicator.DefaultRSIPeriod),
		meanVolume: indicator.Mean(volumes),
	}
}

func last(xs []float64) float64 { return xs[len(xs)-1] }

func (f features) volumeConfirmed() bool {
	return len(f.volumes) > 0 && last(f.volumes) > f.meanVolume
}

// scored is a classification with the names of the conditions that fired.
type scored struct {
	points  int
	reasons []string
}

func (s scored) signal() model.Signal {
	return model.Signal{Label: labelFor(s.points), Score: float64(s.points) / 10}
}

func (s *scored) add(points int, reason string) {
	s.points += points
	s.reasons = append(s.reasons, reason)
}

// momentum returns ok=false when SMA20 or SMA50 has fewer than two points.
func (f features) momentum() (scored, bool) {
	var s scored
	if len(f.sma20) < 2 || len(f.sma50) < 2 {
		return s, false
	}
	price := last(f.prices)
	fast, slow := last(f.sma20), last(f.sma50)
	prevFast, prevSlow := f.sma20[len(f.sma20)-2], f.sma50[len(f.sma50)-2]

	if price > fast && fast > slow {
		s.add(pointsTrend, "price above SMA20 above SMA50")
	}
	if fast > slow && prevFast <= prevSlow {
		s.add(pointsCrossover, "bullish SMA20/SMA50 crossover")
	}
	if len(f.rsi) > 0 {
		if r := last(f.rsi); r >= rsiLow && r <= rsiHigh {
			s.add(pointsRSI, "RSI in neutral band")
		}
	}
	if f.volumeConfirmed() {
		s.add(pointsVolume, "volume above window mean")
	}
	return s, true
}

// meanReversion returns ok=false when SMA20 has fewer than two points or
// RSI is empty.
func (f features) meanReversion() (scored, bool) {
	var s scored
	if len(f.sma20) < 2 || len(f.rsi) == 0 {
		return s, false
	}
	price := last(f.prices)
	fast := last(f.sma20)

	if math.Abs(price-fast)/fast > deviationThreshold {
		s.add(pointsDeviation, "price stretched from SMA20")
	}
	if r := last(f.rsi); r < rsiLow || r > rsiHigh {
		s.add(pointsExtreme, "RSI at extreme")
	}
	if math.Abs(f.velocity()) > velocityThreshold {
		s.add(pointsVelocity, "fast recent move")
	}
	if f.volumeConfirmed() {
		s.add(pointsVolume, "volume above window mean")
	}
	return s, true
}

// velocity is the mean simple return over the last five steps.
func (f features) velocity() float64 {
	n := len(f.prices)
	if n < velocitySteps+1 {
		return 0
	}
	var w indicator.Welford
	for i := n - velocitySteps; i < n; i++ {
		w.Add((f.prices[i] - f.prices[i-1]) / f.prices[i-1])
	}
	return w.Mean()
}

func labelFor(points int) model.SignalLabel {
	switch {
	case points >= 8:
		return model.SignalStrong
	case points >= 5:
		return model.SignalModerate
	case points >= 3:
		return model.SignalWeak
	default:
		return model.SignalNeutral
	}
}

// MomentumSignal scores trend continuation. Windows too short for SMA50 to
// have two points score NEUTRAL/0.
func MomentumSignal(window []model.MarketSample) model.Signal {
	s, _ := extract(window).momentum()
	return s.signal()
}

// MeanReversionSignal scores a snap back towards SMA20. Windows too short
// for SMA20 to have two points, or for RSI, score NEUTRAL/0.
func MeanReversionSignal(window []model.MarketSample) model.Signal {
	s, _ := extract(window).meanReversion()
	return s.signal()
}
