package transport_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ahdev/chatgate/pkg/transport"
	"github.com/google/uuid"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// newConn builds a connection without a socket; the pumps are never started.
func newConn(buffer int) *transport.Connection {
	var wg sync.WaitGroup
	return transport.NewConnection(context.Background(), &wg, nil, transport.ConnectionConfig{SendBuffer: buffer}, nil, nil, newTestLogger())
}

func TestConnectionIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newConn(1).ID().String()
		if seen[id] {
			t.Fatalf("duplicate connection id %s", id)
		}
		seen[id] = true
	}
}

func TestTrySendRespectsBufferCapacity(t *testing.T) {
	c := newConn(2)

	if !c.TrySend([]byte("one")) || !c.TrySend([]byte("two")) {
		t.Fatal("TrySend refused with free buffer space")
	}
	if c.TrySend([]byte("three")) {
		t.Error("TrySend accepted a message into a full buffer")
	}
}

func TestTrySendAfterCloseFails(t *testing.T) {
	c := newConn(4)
	c.Close(nil)

	if c.TrySend([]byte("late")) {
		t.Error("TrySend accepted a message on a closed connection")
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Close")
	}
}

// Connections are reachable through the registry before their pumps start,
// so shutdown or cycling can close one that never ran. The WaitGroup slot
// must be released regardless, or a graceful shutdown waits forever.
func TestCloseBeforeRunReleasesWaitGroup(t *testing.T) {
	var wg sync.WaitGroup
	c := transport.NewConnection(context.Background(), &wg, nil, transport.ConnectionConfig{SendBuffer: 1}, nil, nil, newTestLogger())

	c.Close(nil)

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitGroup never drained after closing a connection that never ran")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	closed := 0
	var wg sync.WaitGroup
	c := transport.NewConnection(context.Background(), &wg, nil, transport.ConnectionConfig{SendBuffer: 1}, nil, nil, newTestLogger())
	c.SetOnCloseHandler(func(_ uuid.UUID, _ error) {
		closed++
	})

	c.Close(nil)
	c.Close(nil)
	c.Close(nil)

	if closed != 1 {
		t.Errorf("onClose ran %d times, want exactly 1", closed)
	}
}
