package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/analysis"
	"traffic-light/internal/model"
)

// Analyzer evaluates the latest stored window of a symbol.
type Analyzer interface {
	Evaluate(ctx context.Context, symbol string) (model.TradeSetup, error)
}

// Session applies inbound messages from one connection.
type Session struct {
	conn        Conn
	registry    *Registry
	broadcaster *Broadcaster
	analyzer    Analyzer
}

// NewSession binds a connection to the shared registry and broadcaster.
func NewSession(c Conn, r *Registry, b *Broadcaster, a Analyzer) *Session {
	return &Session{conn: c, registry: r, broadcaster: b, analyzer: a}
}

// Handle parses and applies one raw frame. Protocol errors are reported to
// the peer and the session continues; a non-nil return means the connection
// is gone and the read loop should stop.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	msg, err := ParseInbound(raw)
	if err != nil {
		return s.replyError(err.Error())
	}

	switch m := msg.(type) {
	case SubscribeMsg:
		if err := s.registry.Subscribe(s.conn, m.Symbol); err != nil {
			return err
		}
		return s.broadcaster.Send(s.conn, symbolReply{Type: TypeSubscriptionSuccess, Symbol: m.Symbol})

	case UnsubscribeMsg:
		if err := s.registry.Unsubscribe(s.conn, m.Symbol); err != nil {
			return err
		}
		return s.broadcaster.Send(s.conn, symbolReply{Type: TypeUnsubscriptionSuccess, Symbol: m.Symbol})

	case GetAnalysisMsg:
		return s.analyze(ctx, m.Symbol)

	case PingMsg:
		return s.broadcaster.Send(s.conn, pongMsg{Type: TypePong, Timestamp: time.Now().UTC()})

	case UnknownMsg:
		return s.replyError("unknown message type: " + m.Type)
	}
	return nil
}

func (s *Session) analyze(ctx context.Context, symbol string) error {
	if s.analyzer == nil {
		return s.replyError("analysis unavailable")
	}
	setup, err := s.analyzer.Evaluate(ctx, symbol)
	if err != nil {
		if !errors.Is(err, analysis.ErrNoRecentData) {
			log.Error().Err(err).Str("component", "session").Str("conn", s.conn.ID()).
				Str("symbol", symbol).Msg("get_analysis failed")
		}
		return s.replyError(err.Error())
	}
	return s.broadcaster.Send(s.conn, analysisUpdate{Type: TypeAnalysisUpdate, Data: setup})
}

func (s *Session) replyError(message string) error {
	return s.broadcaster.SendError(s.conn, message)
}
