// Package ingest feeds market samples into the signal engine from a
// websocket feed, Redis pub/sub, or a Kafka topic.
//
// Every source accepts the same JSON object per message:
//
//	{"symbol":"BTCUSD","price":50123.5,"volume":12.5,"timestamp":"2026-03-02T09:15:00Z"}
//
// timestamp may also be a unix epoch number in seconds or milliseconds.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// Source pushes samples into out until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- model.MarketSample) error
}

// ErrInvalidSample is returned for messages that decode but fail validation.
var ErrInvalidSample = errors.New("invalid sample")

type wireSample struct {
	Symbol    string          `json:"symbol"`
	Price     float64         `json:"price"`
	Volume    float64         `json:"volume"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// DecodeSample parses and validates one wire message.
func DecodeSample(raw []byte) (model.MarketSample, error) {
	var w wireSample
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.MarketSample{}, fmt.Errorf("decode sample: %w", err)
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return model.MarketSample{}, err
	}
	s := model.MarketSample{Symbol: w.Symbol, Price: w.Price, Volume: w.Volume, Timestamp: ts}
	if !s.Valid() {
		return model.MarketSample{}, fmt.Errorf("%w: symbol=%q price=%v volume=%v", ErrInvalidSample, s.Symbol, s.Price, s.Volume)
	}
	return s, nil
}

// epochMillisCutoff separates second from millisecond epochs (year 2286 in seconds).
const epochMillisCutoff = 1e10

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", ErrInvalidSample)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidSample, s, err)
		}
		return t.UTC(), nil
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %s", ErrInvalidSample, raw)
	}
	if f >= epochMillisCutoff {
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), nil
}

// emitter decodes raw messages and forwards valid samples, counting both.
type emitter struct {
	source  string
	out     chan<- model.MarketSample
	metrics *metrics.Metrics
}

// emit blocks until the sample is accepted or ctx is done. It reports false
// only when ctx is done.
func (e emitter) emit(ctx context.Context, raw []byte) bool {
	s, err := DecodeSample(raw)
	if err != nil {
		reason := "decode"
		if errors.Is(err, ErrInvalidSample) {
			reason = "invalid"
		}
		if e.metrics != nil {
			e.metrics.SamplesDropped.WithLabelValues(reason).Inc()
		}
		log.Warn().Err(err).Str("component", "ingest").Str("source", e.source).Msg("dropping message")
		return true
	}
	return e.forward(ctx, s)
}

// forward hands an already decoded sample to the engine.
func (e emitter) forward(ctx context.Context, s model.MarketSample) bool {
	select {
	case e.out <- s:
		if e.metrics != nil {
			e.metrics.SamplesTotal.WithLabelValues(e.source).Inc()
		}
		return true
	case <-ctx.Done():
		return false
	}
}
