package strategy

import (
	"fmt"

	"traffic-light/internal/indicator"
	"traffic-light/internal/model"
)

const zoneWidth = 2.0

// InvalidationZones returns SMA20 ± 2σ, where σ is the population standard
// deviation of every price in window. Windows shorter than 20 samples
// return ErrInsufficientData.
func InvalidationZones(window []model.MarketSample) (model.InvalidationZone, error) {
	if len(window) < fastPeriod {
		return model.InvalidationZone{}, fmt.Errorf("invalidation zones need %d samples, have %d: %w",
			fastPeriod, len(window), ErrInsufficientData)
	}
	prices := model.Prices(window)
	center := last(indicator.SMA(prices, fastPeriod))
	sd := indicator.PopulationStdDev(prices)
	return model.InvalidationZone{
		UpperZone: center + zoneWidth*sd,
		LowerZone: center - zoneWidth*sd,
	}, nil
}
