// Package pipeline connects sample sources, the signal engine, storage and
// live delivery.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/logger"
	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
	"traffic-light/internal/notification"
	"traffic-light/internal/strategy"
)

// Fanout delivers engine output to live subscribers.
type Fanout interface {
	BroadcastMarketData(md model.MarketData) int
	BroadcastSetupAlert(setup model.TradeSetup) int
}

// Sink routes engine output: every MarketData is broadcast, queued for the
// SQLite writer and cached in Redis; every alert is persisted, broadcast and
// sent to the notifiers.
type Sink struct {
	fanout  Fanout
	rows    chan<- model.MarketData
	latest  model.LatestStore        // optional
	setups  model.SetupWriter        // optional
	notify  *notification.Dispatcher // optional
	health  *metrics.HealthStatus    // optional
	metrics *metrics.Metrics         // optional
	now     func() time.Time
}

var _ strategy.Sink = (*Sink)(nil)

// SinkConfig lists the sink's collaborators. Only Fanout and Rows are required.
type SinkConfig struct {
	Fanout  Fanout
	Rows    chan<- model.MarketData
	Latest  model.LatestStore
	Setups  model.SetupWriter
	Notify  *notification.Dispatcher
	Health  *metrics.HealthStatus
	Metrics *metrics.Metrics
}

// NewSink creates a Sink.
func NewSink(cfg SinkConfig) *Sink {
	return &Sink{
		fanout:  cfg.Fanout,
		rows:    cfg.Rows,
		latest:  cfg.Latest,
		setups:  cfg.Setups,
		notify:  cfg.Notify,
		health:  cfg.Health,
		metrics: cfg.Metrics,
		now:     time.Now,
	}
}

// OnMarketData implements strategy.Sink.
func (s *Sink) OnMarketData(ctx context.Context, md model.MarketData) {
	s.fanout.BroadcastMarketData(md)

	if s.rows != nil {
		select {
		case s.rows <- md:
		default:
			if s.metrics != nil {
				s.metrics.SamplesDropped.WithLabelValues("storage_backpressure").Inc()
			}
			log.Warn().Str("component", "pipeline").Str("symbol", md.Symbol).Msg("storage queue full, row dropped")
		}
	}

	if s.latest != nil {
		if err := s.latest.PublishMarketData(ctx, md); err != nil {
			log.Warn().Err(err).Str("component", "pipeline").Str("symbol", md.Symbol).Msg("latest publish failed")
		}
	}

	if s.health != nil {
		s.health.SetLastSampleTime(md.Timestamp)
	}
}

// OnSetup implements strategy.Sink.
func (s *Sink) OnSetup(ctx context.Context, setup model.TradeSetup) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(setup.Symbol, setup.Timestamp))
	lg := logger.Ctx(ctx)

	if s.setups != nil {
		if err := s.setups.SaveSetup(ctx, &setup); err != nil {
			lg.Error().Err(err).Str("component", "pipeline").Str("symbol", setup.Symbol).Msg("persist setup failed")
		}
	}

	if s.metrics != nil {
		s.metrics.SetupsTotal.WithLabelValues(string(setup.SetupType), string(setup.SignalStrength)).Inc()
		if d := s.now().Sub(setup.Timestamp); d >= 0 {
			s.metrics.SetupLatency.Observe(d.Seconds())
		}
	}

	delivered := s.fanout.BroadcastSetupAlert(setup)
	lg.Info().Str("component", "pipeline").Str("symbol", setup.Symbol).
		Str("setup_type", string(setup.SetupType)).Str("strength", string(setup.SignalStrength)).
		Float64("entry", setup.EntryPrice).Float64("r", setup.RMultiple).
		Int("delivered", delivered).Msg("setup alert")

	if s.notify != nil {
		s.notify.Notify(notification.SetupAlert(setup))
	}
}
