package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

var errBroken = errors.New("broken pipe")

type fakeConn struct {
	id string

	mu     sync.Mutex
	msgs   [][]byte
	fail   bool
	closes int
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errBroken
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// decoded returns every received message as a generic map.
func (f *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.msgs))
	for i, m := range f.msgs {
		if err := json.Unmarshal(m, &out[i]); err != nil {
			t.Fatalf("message %d is not JSON: %v (%s)", i, err, m)
		}
	}
	return out
}

func (f *fakeConn) last(t *testing.T) map[string]any {
	t.Helper()
	msgs := f.decoded(t)
	if len(msgs) == 0 {
		t.Fatal("no messages received")
	}
	return msgs[len(msgs)-1]
}
