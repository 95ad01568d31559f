package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// KafkaConfig configures the Kafka consumer-group source.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
}

// KafkaSource reads samples from one topic as a member of a consumer group.
// Offsets are committed after the sample is handed to the engine.
type KafkaSource struct {
	reader  *kafka.Reader
	topic   string
	metrics *metrics.Metrics
}

var _ Source = (*KafkaSource)(nil)

// NewKafkaSource creates the reader. m may be nil.
func NewKafkaSource(cfg KafkaConfig, m *metrics.Metrics) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: brokers and topic are required")
	}
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10e6
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  500 * time.Millisecond,
	})
	return &KafkaSource{reader: r, topic: cfg.Topic, metrics: m}, nil
}

// Name identifies the source in metrics.
func (s *KafkaSource) Name() string { return "kafka" }

// Run fetches, forwards and commits messages until ctx is cancelled.
func (s *KafkaSource) Run(ctx context.Context, out chan<- model.MarketSample) error {
	defer s.reader.Close()
	log.Info().Str("component", "ingest").Str("source", "kafka").Str("topic", s.topic).Msg("consuming")

	em := emitter{source: s.Name(), out: out, metrics: s.metrics}
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("kafka fetch %s: %w", s.topic, err)
		}
		if !em.emit(ctx, msg.Value) {
			return nil
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("component", "ingest").Str("source", "kafka").
				Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("commit failed")
		}
	}
}
