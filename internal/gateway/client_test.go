package gateway

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// newQueuedClient returns a Client without a socket or write pump, so frames
// stay in its queue.
func newQueuedClient(id string, buffer int, timeout time.Duration) *Client {
	return NewClient(id, nil, ClientOptions{SendBuffer: buffer, SendTimeout: timeout})
}

func TestClient_SendTimesOutWhenQueueFull(t *testing.T) {
	c := newQueuedClient("slow", 1, 20*time.Millisecond)

	if err := c.Send([]byte("1")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	start := time.Now()
	err := c.Send([]byte("2"))
	if !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("second send = %v, want ErrSendTimeout", err)
	}
	if took := time.Since(start); took < 20*time.Millisecond {
		t.Errorf("returned after %v, want to wait the full timeout", took)
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	c := newQueuedClient("c", 4, time.Second)
	c.Close()
	c.Close()

	if err := c.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestClient_CloseUnblocksPendingSend(t *testing.T) {
	c := newQueuedClient("c", 1, time.Minute)
	c.Send([]byte("1"))

	errc := make(chan error, 1)
	go func() { errc <- c.Send([]byte("2")) }()
	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("blocked Send = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Send")
	}
}

func TestClient_QueueIsFIFO(t *testing.T) {
	c := newQueuedClient("c", 8, time.Second)
	want := []string{"a", "b", "c", "d"}
	for _, m := range want {
		if err := c.Send([]byte(m)); err != nil {
			t.Fatalf("Send(%s): %v", m, err)
		}
	}
	for i, w := range want {
		select {
		case got := <-c.send:
			if string(got) != w {
				t.Errorf("frame %d = %q, want %q", i, got, w)
			}
		default:
			t.Fatalf("queue drained after %d frames, want %d", i, len(want))
		}
	}
}

func TestBroadcast_SlowClientEvictedHealthyKeepsOrder(t *testing.T) {
	r, b := newTestBroadcaster()
	slow := newQueuedClient("slow", 1, 50*time.Millisecond)
	fast := newQueuedClient("fast", 16, 50*time.Millisecond)
	r.Connect(slow)
	r.Connect(fast)
	r.Subscribe(slow, "BTC")
	r.Subscribe(fast, "BTC")

	first := testMarketData("BTC")
	second := testMarketData("BTC")
	second.Price = 102

	if n := b.BroadcastMarketData(first); n != 2 {
		t.Fatalf("first broadcast delivered %d, want 2", n)
	}
	start := time.Now()
	if n := b.BroadcastMarketData(second); n != 1 {
		t.Fatalf("second broadcast delivered %d, want 1", n)
	}
	if took := time.Since(start); took > time.Second {
		t.Errorf("second broadcast took %v, want bounded by the send timeout", took)
	}

	if r.IsConnected(slow) {
		t.Error("slow client still connected after send timeout")
	}
	if !r.IsConnected(fast) {
		t.Error("healthy client was evicted")
	}
	if got := r.SubscribersOf("BTC"); len(got) != 1 || got[0] != Conn(fast) {
		t.Errorf("subscribers = %v, want only fast", got)
	}
	if err := slow.Send([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send on evicted client = %v, want ErrClosed", err)
	}

	var prices []float64
	for len(fast.send) > 0 {
		var msg struct {
			Data struct {
				Price float64 `json:"price"`
			} `json:"data"`
		}
		if err := json.Unmarshal(<-fast.send, &msg); err != nil {
			t.Fatal(err)
		}
		prices = append(prices, msg.Data.Price)
	}
	if len(prices) != 2 || prices[0] != 101.5 || prices[1] != 102 {
		t.Errorf("healthy client prices = %v, want [101.5 102]", prices)
	}
}
