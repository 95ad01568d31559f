package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/ingest"
	"traffic-light/internal/model"
	"traffic-light/internal/strategy"
)

// Pipeline runs sources into the engine and the engine's rows into storage.
type Pipeline struct {
	engine  *strategy.Engine
	sources []ingest.Source
	samples chan model.MarketSample
	writer  model.SampleWriter
	rows    chan model.MarketData
}

// New creates a Pipeline. rows must be the channel the engine's Sink writes
// to; writer drains it and may be nil when rows is nil.
func New(engine *strategy.Engine, samples chan model.MarketSample, writer model.SampleWriter, rows chan model.MarketData, sources ...ingest.Source) *Pipeline {
	return &Pipeline{
		engine:  engine,
		sources: sources,
		samples: samples,
		writer:  writer,
		rows:    rows,
	}
}

// Run blocks until ctx is cancelled. Sources stop first, then the engine,
// then the writer flushes whatever rows remain.
func (p *Pipeline) Run(ctx context.Context) {
	var srcWG sync.WaitGroup
	for _, src := range p.sources {
		srcWG.Add(1)
		go func(src ingest.Source) {
			defer srcWG.Done()
			if err := src.Run(ctx, p.samples); err != nil {
				log.Error().Err(err).Str("component", "pipeline").Str("source", src.Name()).Msg("source stopped")
			}
		}(src)
	}

	writerDone := make(chan struct{})
	if p.writer != nil && p.rows != nil {
		go func() {
			defer close(writerDone)
			p.writer.Run(context.Background(), p.rows)
		}()
	} else {
		close(writerDone)
	}

	p.engine.Run(ctx, p.samples)
	srcWG.Wait()

	if p.rows != nil {
		close(p.rows)
	}
	<-writerDone
	log.Info().Str("component", "pipeline").Msg("stopped")
}

// Warmup drains src into the engine's windows without emitting anything, so
// a restarted service resumes with full windows. It returns the number of
// samples restored. Call it before Run.
func Warmup(ctx context.Context, engine *strategy.Engine, src ingest.Source) (int, error) {
	ch := make(chan model.MarketSample, 1024)
	errc := make(chan error, 1)
	go func() {
		defer close(ch)
		errc <- src.Run(ctx, ch)
	}()

	n := 0
	for s := range ch {
		engine.Restore(s)
		n++
	}
	if err := <-errc; err != nil {
		return n, err
	}
	log.Info().Str("component", "pipeline").Str("source", src.Name()).Int("samples", n).Msg("warm-up complete")
	return n, nil
}
