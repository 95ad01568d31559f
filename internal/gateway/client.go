package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ClientOptions tunes a websocket client.
type ClientOptions struct {
	SendBuffer   int
	SendTimeout  time.Duration
	PingInterval time.Duration
	ReadTimeout  time.Duration
	MaxMessage   int64
}

// DefaultClientOptions returns the production defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendBuffer:   256,
		SendTimeout:  500 * time.Millisecond,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		MaxMessage:   4096,
	}
}

const writeWait = 10 * time.Second

// Client is a websocket peer. Outbound frames go through a bounded queue
// drained by a single write pump, so delivery order per client is FIFO.
type Client struct {
	id   string
	conn *websocket.Conn
	opts ClientOptions

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ Conn = (*Client)(nil)

// NewClient wraps an upgraded websocket connection.
func NewClient(id string, conn *websocket.Conn, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Client{
		id:   id,
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

// ID returns the client id.
func (c *Client) ID() string { return c.id }

// Send queues msg, waiting at most SendTimeout for room in the queue.
func (c *Client) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(c.opts.SendTimeout)
	defer timer.Stop()
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-timer.C:
		return ErrSendTimeout
	}
}

// Close stops the write pump, which closes the socket. Safe to call twice.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writePump writes one queued message per frame and keeps the peer alive
// with pings. It owns all writes to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("component", "ws").Str("conn", c.id).Msg("write failed")
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump feeds frames to the session until the peer goes away, then
// disconnects the client from the registry.
func (c *Client) readPump(ctx context.Context, s *Session, r *Registry) {
	defer r.Disconnect(c)

	c.conn.SetReadLimit(c.opts.MaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("component", "ws").Str("conn", c.id).Msg("read failed")
			}
			return
		}
		if err := s.Handle(ctx, msg); err != nil {
			return
		}
	}
}
