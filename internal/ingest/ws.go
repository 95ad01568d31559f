package ingest

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// WSConfig configures the websocket feed client.
type WSConfig struct {
	// URL of the sample feed, e.g. "ws://localhost:9001/ws".
	URL string

	// ReconnectDelay is the initial backoff. Defaults to 2s.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *WSConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// WSSource reads samples from a plain-JSON websocket feed and reconnects
// with exponential backoff.
type WSSource struct {
	cfg     WSConfig
	metrics *metrics.Metrics

	// OnConnect and OnDisconnect are optional hooks for health reporting.
	OnConnect    func()
	OnDisconnect func()
}

var _ Source = (*WSSource)(nil)

// NewWSSource validates the URL and returns a source. m may be nil.
func NewWSSource(cfg WSConfig, m *metrics.Metrics) (*WSSource, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed url: unsupported scheme %q", u.Scheme)
	}
	return &WSSource{cfg: cfg, metrics: m}, nil
}

// Name identifies the source in metrics.
func (s *WSSource) Name() string { return "ws" }

// Run streams samples into out until ctx is cancelled.
func (s *WSSource) Run(ctx context.Context, out chan<- model.MarketSample) error {
	delay := s.cfg.ReconnectDelay
	em := emitter{source: s.Name(), out: out, metrics: s.metrics}

	for {
		if ctx.Err() != nil {
			return nil
		}

		connected, err := s.runOnce(ctx, em)
		if err == nil {
			return nil
		}
		if connected {
			delay = s.cfg.ReconnectDelay
		}

		log.Warn().Err(err).Str("component", "ingest").Str("source", "ws").
			Dur("retry_in", delay).Msg("feed disconnected")
		if s.metrics != nil {
			s.metrics.FeedReconnects.Inc()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes one connection and reads until it fails or ctx is cancelled.
// A nil error means ctx was cancelled.
func (s *WSSource) runOnce(ctx context.Context, em emitter) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	defer conn.Close()

	log.Info().Str("component", "ingest").Str("source", "ws").Str("url", s.cfg.URL).Msg("feed connected")
	if s.OnConnect != nil {
		s.OnConnect()
	}
	if s.OnDisconnect != nil {
		defer s.OnDisconnect()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}
		if !em.emit(ctx, raw) {
			return true, nil
		}
	}
}
