// cmd/feedsim serves a simulated market sample feed.
// Serves random-walk samples over WebSocket for running the gateway without a
// real data vendor, and can mirror them to Redis pub/sub and Kafka.
//
// Sample JSON shape is identical to model.MarketSample:
//
//	{"symbol":"BTC","price":50012.5,"volume":12.3,"timestamp":"..."}
//
// Config (env vars):
//
//	FEEDSIM_ADDR           listen address (default: ":9001")
//	FEEDSIM_SYMBOLS        comma-separated SYMBOL:START_PRICE pairs (default: "BTC:50000,ETH:3000")
//	FEEDSIM_INTERVAL       emit interval (default: "1s")
//	FEEDSIM_REDIS_ADDR     when set, also PUBLISH to pub:sample:<symbol>
//	FEEDSIM_KAFKA_BROKERS  when set, also produce to FEEDSIM_KAFKA_TOPIC
//	FEEDSIM_KAFKA_TOPIC    Kafka topic (default: "market.samples")
package main

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/viper"

	"traffic-light/internal/logger"
	"traffic-light/internal/model"
	redisstore "traffic-light/internal/store/redis"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop sample
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		close(ch)
		delete(h.clients, conn)
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("upgrade failed")
			return
		}
		log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Info().Str("remote", r.RemoteAddr).Msg("client disconnected")
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Sample generator ────────────────────────────────────────────────────────

// walkPrice applies a small random walk (±0.1%) with a slight upward drift so
// trend setups show up in a few minutes of simulation.
func walkPrice(rng *rand.Rand, price float64) float64 {
	pct := (rng.Float64()*0.2 - 0.095) / 100.0
	next := price * (1 + pct)
	if next < 0.01 {
		next = 0.01
	}
	return next
}

// publisher mirrors every sample to an external transport.
type publisher interface {
	publish(ctx context.Context, s model.MarketSample, payload []byte) error
	Close() error
}

type redisPublisher struct{ rdb *goredis.Client }

func (p *redisPublisher) publish(ctx context.Context, s model.MarketSample, payload []byte) error {
	return p.rdb.Publish(ctx, redisstore.SampleChannel(s.Symbol), payload).Err()
}

func (p *redisPublisher) Close() error { return p.rdb.Close() }

type kafkaPublisher struct{ w *kafka.Writer }

func (p *kafkaPublisher) publish(ctx context.Context, s model.MarketSample, payload []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(s.Symbol), Value: payload})
}

func (p *kafkaPublisher) Close() error { return p.w.Close() }

func runGenerator(ctx context.Context, h *hub, instruments []instrument, interval time.Duration, pubs []publisher) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for i := range instruments {
			instruments[i].Price = walkPrice(rng, instruments[i].Price)
			s := model.MarketSample{
				Symbol:    instruments[i].Symbol,
				Price:     instruments[i].Price,
				Volume:    float64(rng.Intn(100)+1) / 10,
				Timestamp: time.Now().UTC(),
			}
			b, err := json.Marshal(s)
			if err != nil {
				continue
			}
			h.broadcast(b)
			for _, p := range pubs {
				if err := p.publish(ctx, s, b); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("symbol", s.Symbol).Msgf("%T publish failed", p)
				}
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	v := viper.New()
	v.SetEnvPrefix("FEEDSIM")
	v.AutomaticEnv()
	v.SetDefault("addr", ":9001")
	v.SetDefault("symbols", "BTC:50000,ETH:3000")
	v.SetDefault("interval", "1s")
	v.SetDefault("redis_addr", "")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "market.samples")
	v.SetDefault("log_level", "info")

	if _, err := logger.Init("feedsim", v.GetString("log_level"), "console"); err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	addr := v.GetString("addr")
	interval := v.GetDuration("interval")
	if interval <= 0 {
		interval = time.Second
	}
	instruments := parseInstruments(v.GetString("symbols"))
	if len(instruments) == 0 {
		log.Fatal().Msg("no instruments configured via FEEDSIM_SYMBOLS")
	}
	log.Info().Interface("instruments", instruments).Dur("interval", interval).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pubs []publisher
	if ra := v.GetString("redis_addr"); ra != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: ra})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", ra).Msg("redis connection failed")
		}
		pubs = append(pubs, &redisPublisher{rdb: rdb})
		log.Info().Str("addr", ra).Msg("mirroring to redis")
	}
	if kb := v.GetString("kafka_brokers"); kb != "" {
		pubs = append(pubs, &kafkaPublisher{w: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(kb, ",")...),
			Topic:        v.GetString("kafka_topic"),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		}})
		log.Info().Str("brokers", kb).Str("topic", v.GetString("kafka_topic")).Msg("mirroring to kafka")
	}
	defer func() {
		for _, p := range pubs {
			p.Close()
		}
	}()

	h := newHub()
	go runGenerator(ctx, h, instruments, interval, pubs)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"feedsim"}`))
	})
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info().Str("addr", addr).Msgf("listening (WebSocket: ws://localhost%s/ws)", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	h.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Info().Msg("stopped")
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seg := strings.SplitN(part, ":", 2)
		sym := strings.ToUpper(strings.TrimSpace(seg[0]))
		price := 100.0
		if len(seg) == 2 {
			if p, err := strconv.ParseFloat(strings.TrimSpace(seg[1]), 64); err == nil && p > 0 {
				price = p
			} else {
				log.Warn().Str("entry", part).Msg("invalid start price, using 100")
			}
		}
		if sym == "" {
			continue
		}
		result = append(result, instrument{Symbol: sym, Price: price})
	}
	return result
}
