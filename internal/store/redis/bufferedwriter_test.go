package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"traffic-light/internal/model"
)

type fakeLatest struct {
	mu     sync.Mutex
	fail   bool
	writes []model.MarketData
	latest map[string]model.MarketData
}

func newFakeLatest() *fakeLatest {
	return &fakeLatest{latest: make(map[string]model.MarketData)}
}

func (f *fakeLatest) PublishMarketData(_ context.Context, md model.MarketData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errFail
	}
	f.writes = append(f.writes, md)
	f.latest[md.Symbol] = md
	return nil
}

func (f *fakeLatest) LatestMarketData(_ context.Context, symbol string) (*model.MarketData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errFail
	}
	md, ok := f.latest[symbol]
	if !ok {
		return nil, nil
	}
	return &md, nil
}

func (f *fakeLatest) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func md(symbol string, price float64) model.MarketData {
	return model.MarketData{Symbol: symbol, Price: price, Volume: 1, Timestamp: time.Unix(1700000000, 0)}
}

func TestBufferedWriter_BuffersWhileOpenAndReplays(t *testing.T) {
	ctx := context.Background()
	fake := newFakeLatest()
	cb, clk := newTestBreaker(1, time.Second)
	bw := NewBufferedWriter(ctx, fake, cb, 0, nil)

	fake.setFail(true)
	if err := bw.PublishMarketData(ctx, md("BTC", 1)); err == nil {
		t.Fatal("expected first failure to surface")
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %v, want Open", cb.CurrentState())
	}

	for _, p := range []float64{2, 3} {
		if err := bw.PublishMarketData(ctx, md("BTC", p)); err != nil {
			t.Fatalf("buffered write returned %v", err)
		}
	}
	bw.PublishMarketData(ctx, md("ETH", 10))
	if got := bw.PendingCount(); got != 2 {
		t.Fatalf("PendingCount = %d, want 2 (coalesced per symbol)", got)
	}

	got, err := bw.LatestMarketData(ctx, "BTC")
	if err != nil || got == nil || got.Price != 3 {
		t.Fatalf("LatestMarketData while open = %+v, %v", got, err)
	}

	fake.setFail(false)
	clk.advance(2 * time.Second)
	if err := bw.PublishMarketData(ctx, md("SOL", 7)); err != nil {
		t.Fatalf("recovery write: %v", err)
	}
	bw.Wait()

	if bw.PendingCount() != 0 {
		t.Errorf("PendingCount after flush = %d", bw.PendingCount())
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.writes) != 3 {
		t.Fatalf("writes = %d, want 3 (recovery + 2 replays)", len(fake.writes))
	}
	if fake.latest["BTC"].Price != 3 || fake.latest["ETH"].Price != 10 {
		t.Errorf("replayed latest = %+v", fake.latest)
	}
}

func TestBufferedWriter_DropsOldestSymbolWhenFull(t *testing.T) {
	ctx := context.Background()
	fake := newFakeLatest()
	cb, _ := newTestBreaker(1, time.Hour)
	bw := NewBufferedWriter(ctx, fake, cb, 2, nil)

	fake.setFail(true)
	bw.PublishMarketData(ctx, md("A", 1))
	bw.PublishMarketData(ctx, md("B", 1))
	bw.PublishMarketData(ctx, md("C", 1))
	bw.PublishMarketData(ctx, md("D", 1))

	if got := bw.PendingCount(); got != 2 {
		t.Fatalf("PendingCount = %d, want 2", got)
	}
	if v, _ := bw.LatestMarketData(ctx, "B"); v != nil {
		t.Errorf("B should have been evicted, got %+v", v)
	}
	if v, _ := bw.LatestMarketData(ctx, "D"); v == nil {
		t.Error("D should be buffered")
	}
}

func mdAt(symbol string, price float64, sec int64) model.MarketData {
	return model.MarketData{Symbol: symbol, Price: price, Volume: 1, Timestamp: time.Unix(1700000000+sec, 0)}
}

func TestBufferedWriter_RecoveryWriteSupersedesBuffer(t *testing.T) {
	tests := []struct {
		name       string
		buffered   []model.MarketData
		recovery   model.MarketData
		wantLatest map[string]float64
		wantWrites []float64
	}{
		{
			name:       "same symbol newer",
			buffered:   []model.MarketData{mdAt("BTC", 2, 2), mdAt("BTC", 3, 3)},
			recovery:   mdAt("BTC", 4, 4),
			wantLatest: map[string]float64{"BTC": 4},
			wantWrites: []float64{4},
		},
		{
			name:       "same symbol plus another",
			buffered:   []model.MarketData{mdAt("BTC", 3, 3), mdAt("ETH", 10, 3)},
			recovery:   mdAt("BTC", 4, 4),
			wantLatest: map[string]float64{"BTC": 4, "ETH": 10},
			wantWrites: []float64{4, 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fake := newFakeLatest()
			cb, clk := newTestBreaker(1, time.Second)
			bw := NewBufferedWriter(ctx, fake, cb, 0, nil)

			fake.setFail(true)
			bw.PublishMarketData(ctx, mdAt("BTC", 1, 1))
			for _, m := range tt.buffered {
				if err := bw.PublishMarketData(ctx, m); err != nil {
					t.Fatalf("buffered write returned %v", err)
				}
			}

			fake.setFail(false)
			clk.advance(2 * time.Second)
			if err := bw.PublishMarketData(ctx, tt.recovery); err != nil {
				t.Fatalf("recovery write: %v", err)
			}
			bw.Wait()

			if cb.CurrentState() != StateClosed {
				t.Fatalf("state = %v, want Closed", cb.CurrentState())
			}
			if got := bw.PendingCount(); got != 0 {
				t.Errorf("PendingCount = %d, want 0", got)
			}
			for sym, want := range tt.wantLatest {
				got, err := bw.LatestMarketData(ctx, sym)
				if err != nil || got == nil || got.Price != want {
					t.Errorf("latest %s = %+v, %v; want price %v", sym, got, err, want)
				}
			}

			fake.mu.Lock()
			defer fake.mu.Unlock()
			if len(fake.writes) != len(tt.wantWrites) {
				t.Fatalf("writes = %+v, want prices %v", fake.writes, tt.wantWrites)
			}
			for i, w := range tt.wantWrites {
				if fake.writes[i].Price != w {
					t.Errorf("write[%d] = %v, want %v", i, fake.writes[i].Price, w)
				}
			}
		})
	}
}

func TestBufferedWriter_ReplaySkipsOlderThanWritten(t *testing.T) {
	ctx := context.Background()
	fake := newFakeLatest()
	cb, _ := newTestBreaker(1, time.Hour)
	bw := NewBufferedWriter(ctx, fake, cb, 0, nil)

	if err := bw.PublishMarketData(ctx, mdAt("BTC", 5, 5)); err != nil {
		t.Fatal(err)
	}
	bw.buffer(mdAt("BTC", 3, 3))
	bw.flush()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.writes) != 1 || fake.latest["BTC"].Price != 5 {
		t.Errorf("writes = %+v, latest = %+v; stale replay must be skipped", fake.writes, fake.latest["BTC"])
	}
}
