package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"traffic-light/internal/analysis"
	"traffic-light/internal/model"
)

type fakeAnalyzer struct {
	setups map[string]model.TradeSetup
	calls  int
}

func (f *fakeAnalyzer) Evaluate(_ context.Context, symbol string) (model.TradeSetup, error) {
	f.calls++
	s, ok := f.setups[symbol]
	if !ok {
		return model.TradeSetup{}, fmt.Errorf("%s: %w", symbol, analysis.ErrNoRecentData)
	}
	return s, nil
}

func newTestSession(t *testing.T) (*Session, *fakeConn, *Registry, *fakeAnalyzer) {
	t.Helper()
	r, b := newTestBroadcaster()
	c := newFakeConn("s1")
	r.Connect(c)
	a := &fakeAnalyzer{setups: map[string]model.TradeSetup{
		"BTC": {
			Symbol:         "BTC",
			SetupType:      model.SetupMeanReversion,
			SignalStrength: model.SignalWeak,
			Timestamp:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		},
	}}
	return NewSession(c, r, b, a), c, r, a
}

func TestSession_Messages(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
		check    func(t *testing.T, msg map[string]any)
	}{
		{
			name:     "subscribe",
			raw:      `{"type":"subscribe","symbol":"BTC"}`,
			wantType: TypeSubscriptionSuccess,
			check: func(t *testing.T, msg map[string]any) {
				if msg["symbol"] != "BTC" {
					t.Errorf("symbol = %v", msg["symbol"])
				}
			},
		},
		{
			name:     "unsubscribe never subscribed",
			raw:      `{"type":"unsubscribe","symbol":"ETH"}`,
			wantType: TypeUnsubscriptionSuccess,
		},
		{
			name:     "get_analysis",
			raw:      `{"type":"get_analysis","symbol":"BTC"}`,
			wantType: TypeAnalysisUpdate,
			check: func(t *testing.T, msg map[string]any) {
				data := msg["data"].(map[string]any)
				if data["setup_type"] != "MEAN_REVERSION" {
					t.Errorf("data = %v", data)
				}
			},
		},
		{
			name:     "get_analysis without data",
			raw:      `{"type":"get_analysis","symbol":"ETH"}`,
			wantType: TypeError,
		},
		{name: "ping", raw: `{"type":"ping"}`, wantType: TypePong},
		{
			name:     "unknown type",
			raw:      `{"type":"teleport","symbol":"BTC"}`,
			wantType: TypeError,
			check: func(t *testing.T, msg map[string]any) {
				if msg["message"] != "unknown message type: teleport" {
					t.Errorf("message = %v", msg["message"])
				}
				if _, ok := msg["timestamp"]; !ok {
					t.Error("error reply has no timestamp")
				}
			},
		},
		{name: "malformed json", raw: `{"type":`, wantType: TypeError},
		{name: "missing symbol", raw: `{"type":"subscribe"}`, wantType: TypeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c, r, _ := newTestSession(t)
			if err := s.Handle(context.Background(), []byte(tt.raw)); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			msg := c.last(t)
			if msg["type"] != tt.wantType {
				t.Fatalf("type = %v, want %s (msg=%v)", msg["type"], tt.wantType, msg)
			}
			if tt.check != nil {
				tt.check(t, msg)
			}
			if !r.IsConnected(c) {
				t.Error("session ended on a protocol error")
			}
		})
	}
}

func TestSession_SubscribeThenReceive(t *testing.T) {
	s, c, r, _ := newTestSession(t)
	ctx := context.Background()

	s.Handle(ctx, []byte(`{"type":"subscribe","symbol":"BTC"}`))
	if got := r.SubscriptionsOf(c); len(got) != 1 || got[0] != "BTC" {
		t.Fatalf("subscriptions = %v", got)
	}
	s.Handle(ctx, []byte(`{"type":"unsubscribe","symbol":"BTC"}`))
	if got := r.SubscriptionsOf(c); len(got) != 0 {
		t.Fatalf("subscriptions after unsubscribe = %v", got)
	}
}

func TestSession_EvictedConnStops(t *testing.T) {
	s, c, r, _ := newTestSession(t)
	r.Disconnect(c)

	err := s.Handle(context.Background(), []byte(`{"type":"subscribe","symbol":"BTC"}`))
	if err == nil {
		t.Fatal("expected error for evicted conn")
	}
	if len(r.SubscribersOf("BTC")) != 0 {
		t.Error("evicted conn was re-added")
	}
}

func TestParseInbound(t *testing.T) {
	tests := []struct {
		raw     string
		want    Inbound
		wantErr bool
	}{
		{`{"type":"subscribe","symbol":"BTC"}`, SubscribeMsg{Symbol: "BTC"}, false},
		{`{"type":"unsubscribe","symbol":"BTC"}`, UnsubscribeMsg{Symbol: "BTC"}, false},
		{`{"type":"get_analysis","symbol":"BTC"}`, GetAnalysisMsg{Symbol: "BTC"}, false},
		{`{"type":"ping"}`, PingMsg{}, false},
		{`{"type":"other"}`, UnknownMsg{Type: "other"}, false},
		{`{}`, UnknownMsg{}, false},
		{`{"type":"get_analysis"}`, nil, true},
		{`not json`, nil, true},
	}
	for _, tt := range tests {
		got, err := ParseInbound([]byte(tt.raw))
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseInbound(%s) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInbound(%s) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}
