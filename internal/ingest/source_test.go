package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
)

func TestDecodeSample(t *testing.T) {
	want := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	tests := []struct {
		name    string
		raw     string
		wantTS  time.Time
		wantErr error
	}{
		{"rfc3339", `{"symbol":"BTC","price":1.5,"volume":2,"timestamp":"2026-03-02T09:15:00Z"}`, want, nil},
		{"offset", `{"symbol":"BTC","price":1.5,"volume":2,"timestamp":"2026-03-02T14:45:00+05:30"}`, want, nil},
		{"epoch seconds", `{"symbol":"BTC","price":1.5,"volume":2,"timestamp":1772442900}`, want, nil},
		{"epoch millis", `{"symbol":"BTC","price":1.5,"volume":2,"timestamp":1772442900000}`, want, nil},
		{"zero volume ok", `{"symbol":"BTC","price":1.5,"volume":0,"timestamp":1772442900}`, want, nil},
		{"empty symbol", `{"symbol":"","price":1.5,"volume":2,"timestamp":1772442900}`, time.Time{}, ErrInvalidSample},
		{"zero price", `{"symbol":"BTC","price":0,"volume":2,"timestamp":1772442900}`, time.Time{}, ErrInvalidSample},
		{"negative volume", `{"symbol":"BTC","price":1,"volume":-1,"timestamp":1772442900}`, time.Time{}, ErrInvalidSample},
		{"missing timestamp", `{"symbol":"BTC","price":1,"volume":1}`, time.Time{}, ErrInvalidSample},
		{"bad timestamp", `{"symbol":"BTC","price":1,"volume":1,"timestamp":"yesterday"}`, time.Time{}, ErrInvalidSample},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeSample([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !s.Timestamp.Equal(tt.wantTS) {
				t.Errorf("timestamp = %v, want %v", s.Timestamp, tt.wantTS)
			}
			if s.Symbol != "BTC" || s.Price != 1.5 {
				t.Errorf("sample = %+v", s)
			}
		})
	}

	if _, err := DecodeSample([]byte(`{`)); err == nil || errors.Is(err, ErrInvalidSample) {
		t.Errorf("malformed JSON err = %v, want decode error", err)
	}
}

func TestWSSource_StreamsValidSamples(t *testing.T) {
	frames := []string{
		`{"symbol":"BTC","price":100,"volume":1,"timestamp":"2026-03-02T09:15:00Z"}`,
		`{"symbol":"","price":100,"volume":1,"timestamp":"2026-03-02T09:15:01Z"}`,
		`not json`,
		`{"symbol":"BTC","price":101,"volume":1,"timestamp":"2026-03-02T09:15:02Z"}`,
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// Hold the connection until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	m := metrics.NewMetrics(prometheus.NewRegistry())
	src, err := NewWSSource(WSConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, m)
	if err != nil {
		t.Fatal(err)
	}
	connected := make(chan struct{}, 1)
	src.OnConnect = func() { connected <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.MarketSample, 8)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	var got []model.MarketSample
	timeout := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case s := <-out:
			got = append(got, s)
		case <-timeout:
			t.Fatalf("timed out with %d samples", len(got))
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v after cancel", err)
	}

	if got[0].Price != 100 || got[1].Price != 101 {
		t.Errorf("samples = %+v", got)
	}
	select {
	case <-connected:
	default:
		t.Error("OnConnect not called")
	}
	if v := testutil.ToFloat64(m.SamplesTotal.WithLabelValues("ws")); v != 2 {
		t.Errorf("samples_total = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.SamplesDropped.WithLabelValues("invalid")); v != 1 {
		t.Errorf("dropped invalid = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.SamplesDropped.WithLabelValues("decode")); v != 1 {
		t.Errorf("dropped decode = %v, want 1", v)
	}
}

func TestNewWSSource_RejectsScheme(t *testing.T) {
	if _, err := NewWSSource(WSConfig{URL: "http://localhost:9001/ws"}, nil); err == nil {
		t.Error("expected error for http scheme")
	}
}
