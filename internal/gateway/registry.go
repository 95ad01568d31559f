package gateway

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
)

// Registry tracks active connections and the symbols each one subscribes to.
// A single lock guards the active set, the per-symbol subscriber sets and the
// reverse index, so a connection is never visible in one without the other.
type Registry struct {
	mu      sync.RWMutex
	active  map[Conn]struct{}
	symbols map[string]map[Conn]struct{}
	subs    map[Conn]map[string]struct{}
	metrics *metrics.Metrics
}

// NewRegistry creates an empty Registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		active:  make(map[Conn]struct{}),
		symbols: make(map[string]map[Conn]struct{}),
		subs:    make(map[Conn]map[string]struct{}),
		metrics: m,
	}
}

// Connect registers c as active. Connecting an active connection is a no-op.
func (r *Registry) Connect(c Conn) {
	r.mu.Lock()
	if _, ok := r.active[c]; ok {
		r.mu.Unlock()
		return
	}
	r.active[c] = struct{}{}
	r.subs[c] = make(map[string]struct{})
	count := len(r.active)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.WSConnections.Inc()
	}
	log.Info().Str("component", "gateway").Str("conn", c.ID()).Int("total", count).Msg("client connected")
}

// Disconnect removes c from the active set and from every symbol, pruning
// symbols left without subscribers, then closes c. Repeated calls are no-ops.
func (r *Registry) Disconnect(c Conn) {
	r.mu.Lock()
	if _, ok := r.active[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.active, c)
	removed := len(r.subs[c])
	for sym := range r.subs[c] {
		r.unlinkLocked(c, sym)
	}
	delete(r.subs, c)
	count := len(r.active)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.WSConnections.Dec()
		r.metrics.Subscriptions.Sub(float64(removed))
	}
	if err := c.Close(); err != nil {
		log.Debug().Err(err).Str("component", "gateway").Str("conn", c.ID()).Msg("close")
	}
	log.Info().Str("component", "gateway").Str("conn", c.ID()).Int("total", count).Msg("client disconnected")
}

// Subscribe adds c to symbol's subscribers. Subscribing twice is a no-op.
func (r *Registry) Subscribe(c Conn, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[c]
	if !ok {
		return ErrNotConnected
	}
	if _, dup := set[symbol]; dup {
		return nil
	}
	set[symbol] = struct{}{}
	subs, ok := r.symbols[symbol]
	if !ok {
		subs = make(map[Conn]struct{})
		r.symbols[symbol] = subs
	}
	subs[c] = struct{}{}

	if r.metrics != nil {
		r.metrics.Subscriptions.Inc()
	}
	return nil
}

// Unsubscribe removes c from symbol's subscribers. Unsubscribing from a
// symbol that c never subscribed to is a no-op.
func (r *Registry) Unsubscribe(c Conn, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[c]
	if !ok {
		return ErrNotConnected
	}
	if _, ok := set[symbol]; !ok {
		return nil
	}
	delete(set, symbol)
	r.unlinkLocked(c, symbol)

	if r.metrics != nil {
		r.metrics.Subscriptions.Dec()
	}
	return nil
}

func (r *Registry) unlinkLocked(c Conn, symbol string) {
	subs, ok := r.symbols[symbol]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(r.symbols, symbol)
	}
}

// SubscribersOf returns a snapshot of symbol's subscribers. The result is
// safe to iterate while the registry changes.
func (r *Registry) SubscribersOf(symbol string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.symbols[symbol]
	out := make([]Conn, 0, len(subs))
	for c := range subs {
		out = append(out, c)
	}
	return out
}

// Active returns a snapshot of every active connection.
func (r *Registry) Active() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.active))
	for c := range r.active {
		out = append(out, c)
	}
	return out
}

// IsConnected reports whether c is in the active set.
func (r *Registry) IsConnected(c Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[c]
	return ok
}

// SubscriptionsOf returns the symbols c subscribes to, sorted.
func (r *Registry) SubscriptionsOf(c Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.subs[c]))
	for sym := range r.subs[c] {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// ConnectionCount returns the number of active connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// SubscriptionCount returns the total number of (connection, symbol) pairs.
func (r *Registry) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.subs {
		n += len(set)
	}
	return n
}

// Symbols returns every symbol with at least one subscriber, sorted.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.symbols))
	for sym := range r.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
