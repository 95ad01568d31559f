// Package gateway fans engine output out to live subscribers and serves the
// REST and websocket surfaces.
package gateway

import "errors"

var (
	// ErrNotConnected is returned when operating on a connection that is not
	// (or no longer) registered.
	ErrNotConnected = errors.New("connection not registered")
	// ErrSendTimeout is returned when a peer does not drain its queue in time.
	ErrSendTimeout = errors.New("send timed out")
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("connection closed")
)

// Conn is one live subscriber connection.
//
// Send must preserve FIFO order per connection and must not block longer
// than the implementation's send timeout. Close must be safe to call more
// than once.
type Conn interface {
	ID() string
	Send(msg []byte) error
	Close() error
}
