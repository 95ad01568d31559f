package gateway

import (
	"context"

	"github.com/gorilla/websocket"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

// Hub is the compositor for live delivery. It owns the registry and the
// broadcaster and implements the engine-facing half of the fan-out.
type Hub struct {
	Registry    *Registry
	Broadcaster *Broadcaster
	Latency     *LatencyTracker

	analyzer Analyzer
	opts     ClientOptions
}

// NewHub wires a registry and broadcaster. m may be nil.
func NewHub(analyzer Analyzer, opts ClientOptions, m *metrics.Metrics) *Hub {
	reg := NewRegistry(m)
	lat := NewLatencyTracker(10000)
	return &Hub{
		Registry:    reg,
		Broadcaster: NewBroadcaster(reg, lat, m),
		Latency:     lat,
		analyzer:    analyzer,
		opts:        opts,
	}
}

// BroadcastMarketData delivers md to subscribers of md.Symbol.
func (h *Hub) BroadcastMarketData(md model.MarketData) int {
	return h.Broadcaster.BroadcastMarketData(md)
}

// BroadcastSetupAlert delivers setup to subscribers of setup.Symbol.
func (h *Hub) BroadcastSetupAlert(setup model.TradeSetup) int {
	return h.Broadcaster.BroadcastSetupAlert(setup)
}

// Attach registers an already-established connection and returns its
// session. Used by transports other than the built-in websocket one.
func (h *Hub) Attach(c Conn) *Session {
	h.Registry.Connect(c)
	return NewSession(c, h.Registry, h.Broadcaster, h.analyzer)
}

// HandleWSRequest registers an upgraded websocket and starts its pumps.
// The read pump runs until the peer disconnects or ctx is cancelled.
func (h *Hub) HandleWSRequest(ctx context.Context, conn *websocket.Conn, clientID string) {
	client := NewClient(clientID, conn, h.opts)
	session := h.Attach(client)

	go func() {
		select {
		case <-ctx.Done():
			h.Registry.Disconnect(client)
		case <-client.done:
		}
	}()
	go client.writePump()
	go client.readPump(ctx, session, h.Registry)
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	for _, c := range h.Registry.Active() {
		h.Registry.Disconnect(c)
	}
}
