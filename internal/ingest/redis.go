package ingest

import (
	"context"
	"errors"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// RedisSource reads samples from Redis pub/sub channels matching a pattern,
// e.g. "pub:sample:*".
type RedisSource struct {
	rdb     *goredis.Client
	pattern string
	metrics *metrics.Metrics
}

var _ Source = (*RedisSource)(nil)

// NewRedisSource creates a source. m may be nil.
func NewRedisSource(rdb *goredis.Client, pattern string, m *metrics.Metrics) *RedisSource {
	return &RedisSource{rdb: rdb, pattern: pattern, metrics: m}
}

// Name identifies the source in metrics.
func (s *RedisSource) Name() string { return "redis" }

// Run subscribes and forwards messages until ctx is cancelled. go-redis
// reconnects the subscription on its own.
func (s *RedisSource) Run(ctx context.Context, out chan<- model.MarketSample) error {
	pubsub := s.rdb.PSubscribe(ctx, s.pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	log.Info().Str("component", "ingest").Str("source", "redis").Str("pattern", s.pattern).Msg("subscribed")

	em := emitter{source: s.Name(), out: out, metrics: s.metrics}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if !em.emit(ctx, []byte(msg.Payload)) {
				return nil
			}
		}
	}
}
