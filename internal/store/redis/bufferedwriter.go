package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// latestWriter is the subset of Writer the BufferedWriter drives.
type latestWriter interface {
	PublishMarketData(ctx context.Context, md model.MarketData) error
	LatestMarketData(ctx context.Context, symbol string) (*model.MarketData, error)
}

// BufferedWriter wraps a Writer with a circuit breaker. While the circuit is
// open, writes are held back locally, one per symbol with the newest winning,
// and replayed when the circuit closes again.
type BufferedWriter struct {
	writer  latestWriter
	cb      *CircuitBreaker
	ctx     context.Context
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]model.MarketData
	order   []string
	maxBuf  int
	flushWG sync.WaitGroup

	// wmu serializes writes to the underlying writer so a replay never
	// lands after a newer direct write for the same symbol.
	wmu     sync.Mutex
	written map[string]time.Time
}

var _ model.LatestStore = (*BufferedWriter)(nil)

// NewBufferedWriter creates a BufferedWriter. ctx bounds background flushes.
func NewBufferedWriter(ctx context.Context, w latestWriter, cb *CircuitBreaker, maxSymbols int, m *metrics.Metrics) *BufferedWriter {
	if maxSymbols <= 0 {
		maxSymbols = 10000
	}
	bw := &BufferedWriter{
		writer:  w,
		cb:      cb,
		ctx:     ctx,
		metrics: m,
		pending: make(map[string]model.MarketData),
		maxBuf:  maxSymbols,
		written: make(map[string]time.Time),
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if m != nil {
			m.RedisCircuitBreakerState.Set(float64(to))
			if to == StateOpen && from == StateClosed {
				m.RedisCircuitBreakerTrips.Inc()
			}
		}
		log.Warn().Str("component", "redis").Stringer("from", from).Stringer("to", to).
			Msg("circuit breaker state change")
		if to == StateClosed {
			bw.flushWG.Add(1)
			go func() {
				defer bw.flushWG.Done()
				bw.flush()
			}()
		}
	}
	return bw
}

// PublishMarketData writes md through the circuit breaker. When the circuit
// is open the write is buffered and nil is returned. A successful write
// supersedes any value still buffered for the same symbol.
func (bw *BufferedWriter) PublishMarketData(ctx context.Context, md model.MarketData) error {
	err := bw.cb.Execute(func() error {
		bw.wmu.Lock()
		defer bw.wmu.Unlock()
		if err := bw.writer.PublishMarketData(ctx, md); err != nil {
			return err
		}
		bw.markWritten(md)
		return nil
	})
	if errors.Is(err, ErrCircuitOpen) {
		bw.buffer(md)
		return nil
	}
	return err
}

// LatestMarketData reads through the circuit breaker, preferring a value
// still waiting in the local buffer.
func (bw *BufferedWriter) LatestMarketData(ctx context.Context, symbol string) (*model.MarketData, error) {
	bw.mu.Lock()
	if md, ok := bw.pending[symbol]; ok {
		bw.mu.Unlock()
		return &md, nil
	}
	bw.mu.Unlock()

	var out *model.MarketData
	err := bw.cb.Execute(func() error {
		md, err := bw.writer.LatestMarketData(ctx, symbol)
		out = md
		return err
	})
	return out, err
}

func (bw *BufferedWriter) buffer(md model.MarketData) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if _, ok := bw.pending[md.Symbol]; !ok {
		if len(bw.order) >= bw.maxBuf {
			oldest := bw.order[0]
			bw.order = bw.order[1:]
			delete(bw.pending, oldest)
		}
		bw.order = append(bw.order, md.Symbol)
	}
	bw.pending[md.Symbol] = md

	if bw.metrics != nil {
		bw.metrics.RedisBufferedWrites.Inc()
	}
}

// markWritten records md as the newest value in Redis and discards a buffered
// value for the same symbol that is not newer.
func (bw *BufferedWriter) markWritten(md model.MarketData) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if prev, ok := bw.written[md.Symbol]; !ok || md.Timestamp.After(prev) {
		bw.written[md.Symbol] = md.Timestamp
	}
	if p, ok := bw.pending[md.Symbol]; ok && !p.Timestamp.After(md.Timestamp) {
		delete(bw.pending, md.Symbol)
		for i, sym := range bw.order {
			if sym == md.Symbol {
				bw.order = append(bw.order[:i], bw.order[i+1:]...)
				break
			}
		}
	}
}

// stale reports whether md is not newer than what was last written.
func (bw *BufferedWriter) stale(md model.MarketData) bool {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	prev, ok := bw.written[md.Symbol]
	return ok && !md.Timestamp.After(prev)
}

// flush replays buffered writes directly against the underlying writer,
// skipping any value already superseded by a direct write.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.order) == 0 {
		bw.mu.Unlock()
		return
	}
	order, pending := bw.order, bw.pending
	bw.order = nil
	bw.pending = make(map[string]model.MarketData)
	bw.mu.Unlock()

	flushed := 0
	for _, sym := range order {
		if bw.replay(pending[sym]) {
			flushed++
		}
	}
	log.Info().Str("component", "redis").Int("flushed", flushed).Int("pending", len(order)).
		Msg("flushed buffered writes")
}

func (bw *BufferedWriter) replay(md model.MarketData) bool {
	bw.wmu.Lock()
	defer bw.wmu.Unlock()
	if bw.stale(md) {
		return false
	}
	if err := bw.writer.PublishMarketData(bw.ctx, md); err != nil {
		log.Error().Err(err).Str("component", "redis").Str("symbol", md.Symbol).Msg("buffered replay failed")
		return false
	}
	bw.markWritten(md)
	return true
}

// PendingCount returns the number of symbols waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.order)
}

// Wait blocks until in-flight background flushes finish.
func (bw *BufferedWriter) Wait() { bw.flushWG.Wait() }
