// Package analysis answers on-demand questions about a symbol from the
// persisted sample history.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"traffic-light/internal/logger"
	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
	"traffic-light/internal/strategy"
)

// ErrNoRecentData is returned when a symbol has no samples in the lookback.
var ErrNoRecentData = errors.New("no recent market data")

const (
	DefaultLookback     = 24 * time.Hour
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Service evaluates the latest window of a symbol.
type Service struct {
	samples  model.SampleReader
	setups   model.SetupStore
	lookback time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService creates a Service. m may be nil.
func NewService(samples model.SampleReader, setups model.SetupStore, lookback time.Duration, m *metrics.Metrics) *Service {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Service{
		samples:  samples,
		setups:   setups,
		lookback: lookback,
		metrics:  m,
		now:      time.Now,
	}
}

func (s *Service) window(ctx context.Context, symbol string) ([]model.MarketSample, error) {
	window, err := s.samples.RecentSamples(ctx, symbol, s.now().Add(-s.lookback))
	if err != nil {
		return nil, fmt.Errorf("load samples %s: %w", symbol, err)
	}
	if len(window) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoRecentData)
	}
	return window, nil
}

// Evaluate identifies the setup for the symbol's current window without
// persisting it.
func (s *Service) Evaluate(ctx context.Context, symbol string) (model.TradeSetup, error) {
	start := time.Now()
	window, err := s.window(ctx, symbol)
	if err != nil {
		return model.TradeSetup{}, err
	}
	setup, err := strategy.IdentifySetup(window)
	if err != nil {
		return model.TradeSetup{}, err
	}
	if s.metrics != nil {
		s.metrics.AnalysisDur.Observe(time.Since(start).Seconds())
	}
	return setup, nil
}

// Current evaluates the window, attaches invalidation zones when the window
// is long enough, and persists the setup.
func (s *Service) Current(ctx context.Context, symbol string) (model.Analysis, error) {
	start := time.Now()
	window, err := s.window(ctx, symbol)
	if err != nil {
		return model.Analysis{}, err
	}

	setup, err := strategy.IdentifySetup(window)
	if err != nil {
		return model.Analysis{}, err
	}

	out := model.Analysis{AnalyzedAt: s.now().UTC()}
	zones, err := strategy.InvalidationZones(window)
	switch {
	case err == nil:
		out.Zones = &zones
	case errors.Is(err, strategy.ErrInsufficientData):
	default:
		return model.Analysis{}, err
	}

	if err := s.setups.SaveSetup(ctx, &setup); err != nil {
		return model.Analysis{}, fmt.Errorf("persist setup %s: %w", symbol, err)
	}
	out.Setup = setup

	if s.metrics != nil {
		s.metrics.AnalysisDur.Observe(time.Since(start).Seconds())
	}
	logger.Ctx(ctx).Debug().Str("component", "analysis").Str("symbol", symbol).
		Int("samples", len(window)).Str("setup_type", string(setup.SetupType)).
		Str("strength", string(setup.SignalStrength)).Msg("analysis computed")
	return out, nil
}

// History returns persisted setups for symbol, newest first. limit is
// clamped to [1, MaxHistoryLimit].
func (s *Service) History(ctx context.Context, symbol string, limit int) ([]model.TradeSetup, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	setups, err := s.setups.SetupHistory(ctx, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("setup history %s: %w", symbol, err)
	}
	return setups, nil
}
