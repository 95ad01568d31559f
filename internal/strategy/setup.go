package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"traffic-light/internal/model"
)

var (
	// ErrEmptyWindow is returned when there is no sample to price a setup from.
	ErrEmptyWindow = errors.New("strategy: empty sample window")
	// ErrInsufficientData is returned when a calculation needs more samples.
	ErrInsufficientData = errors.New("strategy: insufficient data")
)

const (
	momentumStopPct   = 0.98
	momentumTargetPct = 1.06
	reversionStopUp   = 1.02
	reversionStopDown = 0.98
)

// RMultiple returns reward distance over risk distance. It is 0 when
// entry == stop.
func RMultiple(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

// IdentifySetup classifies window and prices the resulting trade.
//
// MOMENTUM is chosen only when its score is strictly greater than the
// mean-reversion score; ties go to MEAN_REVERSION.
func IdentifySetup(window []model.MarketSample) (model.TradeSetup, error) {
	if len(window) == 0 {
		return model.TradeSetup{}, ErrEmptyWindow
	}
	f := extract(window)
	mom, _ := f.momentum()
	rev, _ := f.meanReversion()

	cur := window[len(window)-1]
	entry := cur.Price
	setup := model.TradeSetup{
		Symbol:     cur.Symbol,
		EntryPrice: entry,
		Timestamp:  cur.Timestamp,
	}

	var chosen scored
	if mom.points > rev.points {
		chosen = mom
		setup.SetupType = model.SetupMomentum
		setup.StopLoss = entry * momentumStopPct
		setup.TargetPrice = entry * momentumTargetPct
		setup.InvalidationReason = fmt.Sprintf("close below stop %.2f", setup.StopLoss)
	} else {
		chosen = rev
		setup.SetupType = model.SetupMeanReversion
		// Without SMA20 there is no reversion target; the trade is flat.
		target := entry
		if len(f.sma20) > 0 {
			target = last(f.sma20)
		}
		setup.TargetPrice = target
		if entry > target {
			setup.StopLoss = entry * reversionStopUp
			setup.InvalidationReason = fmt.Sprintf("close above stop %.2f", setup.StopLoss)
		} else {
			setup.StopLoss = entry * reversionStopDown
			setup.InvalidationReason = fmt.Sprintf("close below stop %.2f", setup.StopLoss)
		}
	}

	sig := chosen.signal()
	setup.SignalStrength = sig.Label
	setup.Score = sig.Score
	setup.RMultiple = RMultiple(setup.EntryPrice, setup.StopLoss, setup.TargetPrice)
	setup.RiskRewardRatio = setup.RMultiple
	setup.Notes = strings.Join(chosen.reasons, "; ")
	setup.MarketContext = f.context()
	return setup, nil
}

// context summarises the indicator state for display next to a setup.
func (f features) context() string {
	parts := make([]string, 0, 3)
	if len(f.sma20) > 0 {
		parts = append(parts, fmt.Sprintf("SMA20 %.2f", last(f.sma20)))
	}
	if len(f.sma50) > 0 {
		parts = append(parts, fmt.Sprintf("SMA50 %.2f", last(f.sma50)))
	}
	if len(f.rsi) > 0 {
		parts = append(parts, fmt.Sprintf("RSI %.1f", last(f.rsi)))
	}
	return strings.Join(parts, ", ")
}
