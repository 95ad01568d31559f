package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// maxReplayGap caps the sleep between two replayed samples.
const maxReplayGap = 5 * time.Second

// ReplayConfig selects the stored samples to replay.
type ReplayConfig struct {
	Symbols []string
	Since   time.Time

	// Speed is the playback rate: 1 is real time, 10 is ten times faster,
	// 0 replays as fast as the engine accepts samples.
	Speed float64
}

// ReplaySource re-emits samples persisted in storage, merged across symbols
// in timestamp order. It returns once every sample has been handed over.
type ReplaySource struct {
	reader  model.SampleReader
	cfg     ReplayConfig
	metrics *metrics.Metrics
}

var _ Source = (*ReplaySource)(nil)

// NewReplaySource creates a replay over reader. m may be nil.
func NewReplaySource(reader model.SampleReader, cfg ReplayConfig, m *metrics.Metrics) *ReplaySource {
	return &ReplaySource{reader: reader, cfg: cfg, metrics: m}
}

// Name identifies the source in metrics.
func (s *ReplaySource) Name() string { return "replay" }

// Run loads the selected samples and emits them, sleeping the scaled gap
// between consecutive timestamps.
func (s *ReplaySource) Run(ctx context.Context, out chan<- model.MarketSample) error {
	var all []model.MarketSample
	for _, sym := range s.cfg.Symbols {
		samples, err := s.reader.RecentSamples(ctx, sym, s.cfg.Since)
		if err != nil {
			return fmt.Errorf("replay %s: %w", sym, err)
		}
		all = append(all, samples...)
	}
	if len(all) == 0 {
		log.Info().Str("component", "ingest").Str("source", "replay").Msg("no stored samples")
		return nil
	}

	// Stable, so each symbol keeps its stored order on equal timestamps.
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	log.Info().Str("component", "ingest").Str("source", "replay").
		Int("samples", len(all)).Int("symbols", len(s.cfg.Symbols)).Float64("speed", s.cfg.Speed).Msg("replay started")

	em := emitter{source: s.Name(), out: out, metrics: s.metrics}
	var prev time.Time
	for i, smp := range all {
		if s.cfg.Speed > 0 && !prev.IsZero() {
			if gap := scaledGap(smp.Timestamp.Sub(prev), s.cfg.Speed); gap > 0 {
				t := time.NewTimer(gap)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				}
			}
		}
		prev = smp.Timestamp

		if !em.forward(ctx, smp) {
			log.Info().Str("component", "ingest").Str("source", "replay").Int("emitted", i).Msg("replay cancelled")
			return nil
		}
	}

	log.Info().Str("component", "ingest").Str("source", "replay").Int("emitted", len(all)).Msg("replay completed")
	return nil
}

func scaledGap(gap time.Duration, speed float64) time.Duration {
	d := time.Duration(float64(gap) / speed)
	if d > maxReplayGap {
		d = maxReplayGap
	}
	return d
}
