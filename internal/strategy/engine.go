package strategy

import (
	"context"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/model"
	"traffic-light/internal/ringbuf"
)

// DefaultWindowSize bounds the per-symbol rolling window.
const DefaultWindowSize = 500

// Sink receives the engine's output. Calls happen on the engine goroutine.
type Sink interface {
	// OnMarketData is called once per accepted sample.
	OnMarketData(ctx context.Context, md model.MarketData)

	// OnSetup is called when a symbol's setup reaches the alert threshold
	// and differs from the previous alert for that symbol.
	OnSetup(ctx context.Context, setup model.TradeSetup)
}

// Engine keeps a rolling window per symbol and routes each incoming sample
// through the classifier. Windows of different symbols never interact.
//
// Process and Run must be driven from a single goroutine.
type Engine struct {
	windowSize  int
	minStrength model.SignalLabel
	sink        Sink
	symbols     map[string]*symbolState
}

type symbolState struct {
	ring      *ringbuf.Ring[model.MarketSample]
	window    []model.MarketSample // ordered view of ring, reused per sample
	lastAlert *alertKey
}

type alertKey struct {
	setupType model.SetupType
	strength  model.SignalLabel
}

// NewEngine creates an engine that alerts on setups of at least minStrength.
func NewEngine(windowSize int, minStrength model.SignalLabel, sink Sink) *Engine {
	if windowSize < slowPeriod+1 {
		windowSize = DefaultWindowSize
	}
	if minStrength.Rank() < 0 {
		minStrength = model.SignalModerate
	}
	return &Engine{
		windowSize:  windowSize,
		minStrength: minStrength,
		sink:        sink,
		symbols:     make(map[string]*symbolState),
	}
}

// Run consumes samples until ctx is cancelled or in is closed.
func (e *Engine) Run(ctx context.Context, in <-chan model.MarketSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			e.Process(ctx, s)
		}
	}
}

// Process appends s to its symbol window and emits the results.
// Out-of-order samples are dropped; the engine never re-sorts a window.
func (e *Engine) Process(ctx context.Context, s model.MarketSample) {
	e.process(ctx, s, true)
}

// Restore appends a previously processed sample without emitting anything.
// The alert state still advances, so a setup that was already alerted before
// a restart is not alerted again.
func (e *Engine) Restore(s model.MarketSample) {
	e.process(context.Background(), s, false)
}

func (e *Engine) process(ctx context.Context, s model.MarketSample, emit bool) {
	if !s.Valid() {
		log.Warn().Str("component", "engine").Str("symbol", s.Symbol).
			Float64("price", s.Price).Msg("dropping invalid sample")
		return
	}

	st, ok := e.symbols[s.Symbol]
	if !ok {
		st = &symbolState{
			ring:   ringbuf.New[model.MarketSample](e.windowSize),
			window: make([]model.MarketSample, 0, e.windowSize),
		}
		e.symbols[s.Symbol] = st
	}
	if last, ok := st.ring.Last(); ok && s.Timestamp.Before(last.Timestamp) {
		log.Warn().Str("component", "engine").Str("symbol", s.Symbol).
			Time("ts", s.Timestamp).Msg("dropping out-of-order sample")
		return
	}

	st.ring.Push(s)
	st.window = st.ring.AppendTo(st.window[:0])

	if emit {
		md, err := Snapshot(st.window)
		if err != nil {
			return
		}
		e.sink.OnMarketData(ctx, md)
	}

	setup, err := IdentifySetup(st.window)
	if err != nil {
		return
	}
	if setup.SignalStrength.Rank() < e.minStrength.Rank() {
		st.lastAlert = nil
		return
	}
	key := alertKey{setupType: setup.SetupType, strength: setup.SignalStrength}
	if st.lastAlert != nil && *st.lastAlert == key {
		return
	}
	st.lastAlert = &key
	if emit {
		e.sink.OnSetup(ctx, setup)
	}
}

// Window returns a copy of the current window for symbol.
func (e *Engine) Window(symbol string) []model.MarketSample {
	st, ok := e.symbols[symbol]
	if !ok {
		return nil
	}
	return st.ring.AppendTo(make([]model.MarketSample, 0, st.ring.Len()))
}
