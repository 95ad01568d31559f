package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
	"traffic-light/internal/notification"
	"traffic-light/internal/strategy"
)

var t0 = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

type fakeFanout struct {
	mu     sync.Mutex
	data   []model.MarketData
	alerts []model.TradeSetup
}

func (f *fakeFanout) BroadcastMarketData(md model.MarketData) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = append(f.data, md)
	return 1
}

func (f *fakeFanout) BroadcastSetupAlert(s model.TradeSetup) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, s)
	return 1
}

func (f *fakeFanout) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data), len(f.alerts)
}

type fakeSetups struct {
	mu     sync.Mutex
	saved  []model.TradeSetup
	nextID int64
	err    error
}

func (f *fakeSetups) SaveSetup(_ context.Context, s *model.TradeSetup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	s.ID = f.nextID
	f.saved = append(f.saved, *s)
	return nil
}

type fakeLatest struct {
	mu   sync.Mutex
	last map[string]model.MarketData
	err  error
}

func (f *fakeLatest) PublishMarketData(_ context.Context, md model.MarketData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.last == nil {
		f.last = make(map[string]model.MarketData)
	}
	f.last[md.Symbol] = md
	return nil
}

func (f *fakeLatest) LatestMarketData(_ context.Context, symbol string) (*model.MarketData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	md, ok := f.last[symbol]
	if !ok {
		return nil, nil
	}
	return &md, nil
}

type collectingWriter struct {
	mu   sync.Mutex
	rows []model.MarketData
}

func (w *collectingWriter) Run(ctx context.Context, ch <-chan model.MarketData) {
	for {
		select {
		case <-ctx.Done():
			return
		case md, ok := <-ch:
			if !ok {
				return
			}
			w.mu.Lock()
			w.rows = append(w.rows, md)
			w.mu.Unlock()
		}
	}
}

func (w *collectingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

// sliceSource emits its samples then idles until cancelled.
type sliceSource struct {
	samples []model.MarketSample
}

func (s *sliceSource) Name() string { return "slice" }

func (s *sliceSource) Run(ctx context.Context, out chan<- model.MarketSample) error {
	for _, smp := range s.samples {
		select {
		case out <- smp:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

// uptrend zigzags upward by 5 per step with a 25 bump on odd indices and a
// volume spike on the final sample.
func uptrend(symbol string, n int) []model.MarketSample {
	out := make([]model.MarketSample, n)
	for i := range out {
		p := 50000 + 5*float64(i)
		if i%2 == 1 {
			p += 25
		}
		v := 1000.0
		if i == n-1 {
			v = 5000
		}
		out[i] = model.MarketSample{Symbol: symbol, Price: p, Volume: v, Timestamp: t0.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func sampleData(symbol string, i int) model.MarketData {
	return model.MarketData{Symbol: symbol, Price: 100, Volume: 1, Timestamp: t0.Add(time.Duration(i) * time.Second)}
}

func TestSink_OnMarketData_RoutesEverywhere(t *testing.T) {
	fan := &fakeFanout{}
	rows := make(chan model.MarketData, 4)
	latest := &fakeLatest{}
	health := metrics.NewHealthStatus()
	s := NewSink(SinkConfig{Fanout: fan, Rows: rows, Latest: latest, Health: health})

	md := sampleData("BTC", 0)
	s.OnMarketData(context.Background(), md)

	if n, _ := fan.counts(); n != 1 {
		t.Errorf("broadcasts = %d, want 1", n)
	}
	if len(rows) != 1 {
		t.Errorf("queued rows = %d, want 1", len(rows))
	}
	got, _ := latest.LatestMarketData(context.Background(), "BTC")
	if got == nil || !got.Timestamp.Equal(md.Timestamp) {
		t.Errorf("latest = %+v, want %v", got, md.Timestamp)
	}
}

func TestSink_OnMarketData_Backpressure(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	fan := &fakeFanout{}
	rows := make(chan model.MarketData, 2)
	s := NewSink(SinkConfig{Fanout: fan, Rows: rows, Metrics: m})

	for i := 0; i < 5; i++ {
		s.OnMarketData(context.Background(), sampleData("ETH", i))
	}

	if n, _ := fan.counts(); n != 5 {
		t.Errorf("broadcasts = %d, want 5 regardless of storage", n)
	}
	if len(rows) != 2 {
		t.Errorf("queued rows = %d, want 2", len(rows))
	}
	if got := testutil.ToFloat64(m.SamplesDropped.WithLabelValues("storage_backpressure")); got != 3 {
		t.Errorf("dropped = %v, want 3", got)
	}
}

func TestSink_OnMarketData_LatestFailureIsNotFatal(t *testing.T) {
	fan := &fakeFanout{}
	rows := make(chan model.MarketData, 1)
	s := NewSink(SinkConfig{Fanout: fan, Rows: rows, Latest: &fakeLatest{err: errors.New("down")}})

	s.OnMarketData(context.Background(), sampleData("BTC", 0))

	if n, _ := fan.counts(); n != 1 || len(rows) != 1 {
		t.Errorf("broadcasts=%d rows=%d, want 1/1", n, len(rows))
	}
}

func TestSink_OnSetup_PersistsBroadcastsNotifies(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	fan := &fakeFanout{}
	setups := &fakeSetups{}
	disp := notification.NewDispatcher(4, m)
	s := NewSink(SinkConfig{Fanout: fan, Setups: setups, Notify: disp, Metrics: m})

	setup := model.TradeSetup{
		Symbol:         "BTC",
		SetupType:      model.SetupMomentum,
		SignalStrength: model.SignalStrong,
		EntryPrice:     50000,
		Timestamp:      t0,
	}
	s.OnSetup(context.Background(), setup)

	if len(setups.saved) != 1 || setups.saved[0].ID != 1 {
		t.Fatalf("saved = %+v, want one setup with id 1", setups.saved)
	}
	_, alerts := fan.counts()
	if alerts != 1 {
		t.Errorf("alert broadcasts = %d, want 1", alerts)
	}
	if got := testutil.ToFloat64(m.SetupsTotal.WithLabelValues("MOMENTUM", "STRONG")); got != 1 {
		t.Errorf("setups_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("dropped")); got != 0 {
		t.Errorf("notifications dropped = %v, want 0", got)
	}
}

func TestSink_OnSetup_PersistFailureStillBroadcasts(t *testing.T) {
	fan := &fakeFanout{}
	s := NewSink(SinkConfig{Fanout: fan, Setups: &fakeSetups{err: errors.New("disk full")}})

	s.OnSetup(context.Background(), model.TradeSetup{Symbol: "BTC", SetupType: model.SetupMomentum, SignalStrength: model.SignalModerate, Timestamp: t0})

	if _, alerts := fan.counts(); alerts != 1 {
		t.Errorf("alert broadcasts = %d, want 1", alerts)
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	fan := &fakeFanout{}
	setups := &fakeSetups{}
	writer := &collectingWriter{}
	rows := make(chan model.MarketData, 256)
	samples := make(chan model.MarketSample, 16)

	sink := NewSink(SinkConfig{Fanout: fan, Rows: rows, Setups: setups})
	eng := strategy.NewEngine(200, model.SignalModerate, sink)
	src := &sliceSource{samples: uptrend("BTC", 100)}
	p := New(eng, samples, writer, rows, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if n, _ := fan.counts(); n == 100 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for 100 broadcasts")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}

	if got := writer.count(); got != 100 {
		t.Errorf("persisted rows = %d, want 100", got)
	}
	_, alerts := fan.counts()
	if alerts == 0 || alerts != len(setups.saved) {
		t.Fatalf("alerts = %d, saved = %d, want equal and non-zero", alerts, len(setups.saved))
	}
	last := setups.saved[len(setups.saved)-1]
	if last.SetupType != model.SetupMomentum {
		t.Errorf("last setup = %s, want MOMENTUM", last.SetupType)
	}
}

// finiteSource emits its samples and returns.
type finiteSource struct {
	samples []model.MarketSample
	err     error
}

func (s *finiteSource) Name() string { return "finite" }

func (s *finiteSource) Run(ctx context.Context, out chan<- model.MarketSample) error {
	for _, smp := range s.samples {
		select {
		case out <- smp:
		case <-ctx.Done():
			return nil
		}
	}
	return s.err
}

func TestWarmup_RestoresWithoutEmitting(t *testing.T) {
	fan := &fakeFanout{}
	rows := make(chan model.MarketData, 256)
	eng := strategy.NewEngine(200, model.SignalModerate, NewSink(SinkConfig{Fanout: fan, Rows: rows}))

	n, err := Warmup(context.Background(), eng, &finiteSource{samples: uptrend("BTC", 60)})
	if err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if n != 60 {
		t.Errorf("restored = %d, want 60", n)
	}
	if got := len(eng.Window("BTC")); got != 60 {
		t.Errorf("window = %d, want 60", got)
	}
	if d, a := fan.counts(); d != 0 || a != 0 {
		t.Errorf("warm-up broadcast %d data / %d alerts, want none", d, a)
	}
	if len(rows) != 0 {
		t.Errorf("warm-up queued %d rows, want none", len(rows))
	}
}

func TestWarmup_SourceError(t *testing.T) {
	eng := strategy.NewEngine(200, model.SignalModerate, NewSink(SinkConfig{Fanout: &fakeFanout{}}))
	src := &finiteSource{samples: uptrend("BTC", 3), err: errors.New("db locked")}

	n, err := Warmup(context.Background(), eng, src)
	if err == nil {
		t.Fatal("expected source error")
	}
	if n != 3 {
		t.Errorf("restored = %d, want 3 before the error", n)
	}
}
