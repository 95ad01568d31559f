package model

import "time"

// SignalLabel grades a score into a coarse strength bucket.
type SignalLabel string

const (
	SignalNeutral  SignalLabel = "NEUTRAL"
	SignalWeak     SignalLabel = "WEAK"
	SignalModerate SignalLabel = "MODERATE"
	SignalStrong   SignalLabel = "STRONG"
)

// Rank orders labels from NEUTRAL (0) to STRONG (3). Unknown labels rank -1.
func (l SignalLabel) Rank() int {
	switch l {
	case SignalNeutral:
		return 0
	case SignalWeak:
		return 1
	case SignalModerate:
		return 2
	case SignalStrong:
		return 3
	}
	return -1
}

// ParseSignalLabel validates a label name.
func ParseSignalLabel(s string) (SignalLabel, bool) {
	l := SignalLabel(s)
	return l, l.Rank() >= 0
}

// Signal is the result of one classification call.
type Signal struct {
	Label SignalLabel `json:"label"`
	Score float64     `json:"score"`
}

// SetupType is the directional thesis of a trade setup.
type SetupType string

const (
	SetupMomentum      SetupType = "MOMENTUM"
	SetupMeanReversion SetupType = "MEAN_REVERSION"
)

// TradeSetup is a risk-defined trade idea produced from a sample window.
// ID is zero until the setup has been persisted.
type TradeSetup struct {
	ID             int64       `json:"id,omitempty"`
	Symbol         string      `json:"symbol"`
	SetupType      SetupType   `json:"setup_type"`
	SignalStrength SignalLabel `json:"signal_strength"`
	Score          float64     `json:"score"`
	RMultiple      float64     `json:"r_multiple"`
	EntryPrice     float64     `json:"entry_price"`
	StopLoss       float64     `json:"stop_loss"`
	TargetPrice    float64     `json:"target_price"`
	Timestamp      time.Time   `json:"timestamp"`

	Notes              string  `json:"setup_notes,omitempty"`
	InvalidationReason string  `json:"invalidation_reason,omitempty"`
	RiskRewardRatio    float64 `json:"risk_reward_ratio,omitempty"`
	MarketContext      string  `json:"market_context,omitempty"`
}

// InvalidationZone is the band outside of which a setup's thesis is void.
type InvalidationZone struct {
	UpperZone float64 `json:"upper_zone"`
	LowerZone float64 `json:"lower_zone"`
}

// Analysis is the response of an on-demand analysis of the latest window.
// Zones is nil when the window is too short to compute them.
type Analysis struct {
	Setup      TradeSetup        `json:"setup"`
	Zones      *InvalidationZone `json:"invalidation_zones"`
	AnalyzedAt time.Time         `json:"analysis_timestamp"`
}
