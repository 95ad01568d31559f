package gateway

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// Broadcaster delivers engine output to the subscribers of a symbol.
type Broadcaster struct {
	registry *Registry
	latency  *LatencyTracker
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewBroadcaster creates a Broadcaster. latency and m may be nil.
func NewBroadcaster(r *Registry, latency *LatencyTracker, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{registry: r, latency: latency, metrics: m, now: time.Now}
}

// BroadcastMarketData sends md to every subscriber of md.Symbol and returns
// the number of successful deliveries.
func (b *Broadcaster) BroadcastMarketData(md model.MarketData) int {
	if b.latency != nil && !md.Timestamp.IsZero() {
		if d := b.now().Sub(md.Timestamp); d >= 0 {
			b.latency.Record(d)
		}
	}
	return b.fanout(TypeMarketData, md.Symbol, marketDataMsg{Type: TypeMarketData, Data: md})
}

// BroadcastSetupAlert sends setup to every subscriber of setup.Symbol.
func (b *Broadcaster) BroadcastSetupAlert(setup model.TradeSetup) int {
	return b.fanout(TypeSetupAlert, setup.Symbol, setupAlert{
		Type:      TypeSetupAlert,
		Data:      setup,
		Timestamp: b.now().UTC(),
	})
}

// fanout marshals v once and sends it to a snapshot of symbol's subscribers.
// Sends happen outside the registry lock; a failed send evicts that
// connection only.
//
// Sends run in turn on the caller's goroutine, which is the engine's. A
// client whose queue is full holds the whole fan-out for up to SendTimeout
// and is then evicted, so one broadcast blocks for at most SendTimeout per
// stalled subscriber.
func (b *Broadcaster) fanout(kind, symbol string, v any) int {
	subs := b.registry.SubscribersOf(symbol)
	if len(subs) == 0 {
		return 0
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("component", "broadcaster").Str("kind", kind).Msg("marshal")
		return 0
	}

	start := time.Now()
	delivered := 0
	for _, c := range subs {
		if err := c.Send(data); err != nil {
			b.evict(c, err)
			continue
		}
		delivered++
	}

	if b.metrics != nil {
		b.metrics.BroadcastsTotal.WithLabelValues(kind).Inc()
		b.metrics.DeliveriesTotal.WithLabelValues(kind).Add(float64(delivered))
		b.metrics.FanoutDur.Observe(time.Since(start).Seconds())
	}
	return delivered
}

// Send marshals v and sends it to c, evicting c on failure.
func (b *Broadcaster) Send(c Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.Send(data); err != nil {
		b.evict(c, err)
		return err
	}
	return nil
}

// SendError sends an error message to c. Failure disconnects c.
func (b *Broadcaster) SendError(c Conn, message string) error {
	return b.Send(c, errorMsg{Type: TypeError, Message: message, Timestamp: b.now().UTC()})
}

func (b *Broadcaster) evict(c Conn, err error) {
	log.Warn().Err(err).Str("component", "broadcaster").Str("conn", c.ID()).Msg("send failed, evicting")
	if b.metrics != nil {
		b.metrics.SendFailures.Inc()
		b.metrics.Evictions.Inc()
	}
	b.registry.Disconnect(c)
}
