package strategy

import "traffic-light/internal/model"

// Snapshot enriches the last sample of window with the indicator values
// computed over the whole window. Fields that need more data stay nil.
func Snapshot(window []model.MarketSample) (model.MarketData, error) {
	if len(window) == 0 {
		return model.MarketData{}, ErrEmptyWindow
	}
	cur := window[len(window)-1]
	md := model.MarketData{
		Symbol:    cur.Symbol,
		Price:     cur.Price,
		Volume:    cur.Volume,
		Timestamp: cur.Timestamp,
	}

	f := extract(window)
	if len(f.sma20) > 0 {
		md.SMA20 = model.Float(last(f.sma20))
	}
	if len(f.sma50) > 0 {
		md.SMA50 = model.Float(last(f.sma50))
	}
	if len(f.rsi) > 0 {
		md.RSI = model.Float(last(f.rsi))
	}
	if s, ok := f.momentum(); ok {
		md.MomentumScore = model.Float(s.signal().Score)
	}
	if s, ok := f.meanReversion(); ok {
		md.MeanReversionScore = model.Float(s.signal().Score)
	}
	return md, nil
}
