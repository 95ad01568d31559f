package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"traffic-light/internal/model"
)

// Inbound message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeGetAnalysis = "get_analysis"
	TypePing        = "ping"
)

// Outbound message types.
const (
	TypeSubscriptionSuccess   = "subscription_success"
	TypeUnsubscriptionSuccess = "unsubscription_success"
	TypeAnalysisUpdate        = "analysis_update"
	TypeMarketData            = "market_data"
	TypeSetupAlert            = "setup_alert"
	TypeError                 = "error"
	TypePong                  = "pong"
)

// Inbound is a parsed client message. The set of implementations is closed.
type Inbound interface {
	inbound()
}

type (
	SubscribeMsg   struct{ Symbol string }
	UnsubscribeMsg struct{ Symbol string }
	GetAnalysisMsg struct{ Symbol string }
	PingMsg        struct{}
	// UnknownMsg carries a type the server does not handle.
	UnknownMsg struct{ Type string }
)

func (SubscribeMsg) inbound()   {}
func (UnsubscribeMsg) inbound() {}
func (GetAnalysisMsg) inbound() {}
func (PingMsg) inbound()        {}
func (UnknownMsg) inbound()     {}

// errMissingSymbol is returned for symbol-scoped messages without a symbol.
var errMissingSymbol = errors.New("symbol is required")

type rawInbound struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// ParseInbound decodes one client frame.
func ParseInbound(data []byte) (Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch raw.Type {
	case TypeSubscribe, TypeUnsubscribe, TypeGetAnalysis:
		if raw.Symbol == "" {
			return nil, fmt.Errorf("%s: %w", raw.Type, errMissingSymbol)
		}
	}

	switch raw.Type {
	case TypeSubscribe:
		return SubscribeMsg{Symbol: raw.Symbol}, nil
	case TypeUnsubscribe:
		return UnsubscribeMsg{Symbol: raw.Symbol}, nil
	case TypeGetAnalysis:
		return GetAnalysisMsg{Symbol: raw.Symbol}, nil
	case TypePing:
		return PingMsg{}, nil
	default:
		return UnknownMsg{Type: raw.Type}, nil
	}
}

// ── Outbound ──

type symbolReply struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

type analysisUpdate struct {
	Type string           `json:"type"`
	Data model.TradeSetup `json:"data"`
}

type marketDataMsg struct {
	Type string           `json:"type"`
	Data model.MarketData `json:"data"`
}

type setupAlert struct {
	Type      string           `json:"type"`
	Data      model.TradeSetup `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

type errorMsg struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type pongMsg struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
