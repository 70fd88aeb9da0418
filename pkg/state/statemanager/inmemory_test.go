package statemanager_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ahdev/chatgate/pkg/state"
	"github.com/ahdev/chatgate/pkg/state/statemanager"
	"github.com/ahdev/chatgate/pkg/transport"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager(policy state.DropPolicy) *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger(), policy)
}

// newTransportConn builds a connection without an underlying socket. The
// pumps are never started, so TrySend exercises only the buffered queue.
func newTransportConn(buffer int) *transport.Connection {
	var wg sync.WaitGroup
	return transport.NewConnection(context.Background(), &wg, nil, transport.ConnectionConfig{SendBuffer: buffer}, nil, nil, newTestLogger())
}

func register(t *testing.T, m *statemanager.InMemoryManager, userID int64, username string) *transport.Connection {
	t.Helper()
	conn := newTransportConn(16)
	if _, err := m.RegisterConnection(conn, state.Identity{UserID: userID, Username: username}); err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	return conn
}

// --- Connection Registry Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager(state.DropSkip)
	conn := register(t, m, 1, "alice")

	stateConn, found := m.GetConnection(conn.ID())
	if !found {
		t.Fatal("GetConnection failed to find registered connection")
	}
	if stateConn.Identity.Username != "alice" {
		t.Errorf("Registered identity mismatch: %+v", stateConn.Identity)
	}

	if _, err := m.RegisterConnection(conn, state.Identity{UserID: 1, Username: "alice"}); err == nil {
		t.Error("duplicate RegisterConnection should fail")
	}

	if err := m.DeregisterConnection(conn.ID()); err != nil {
		t.Fatalf("DeregisterConnection failed: %v", err)
	}
	if _, found := m.GetConnection(conn.ID()); found {
		t.Error("connection still present after deregistration")
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	m := newTestManager(state.DropSkip)

	// Never-registered handle: no-op, not an error.
	ghost := newTransportConn(1)
	if err := m.DeregisterConnection(ghost.ID()); err != nil {
		t.Fatalf("DeregisterConnection(unknown) = %v, want nil", err)
	}

	conn := register(t, m, 1, "alice")
	if err := m.DeregisterConnection(conn.ID()); err != nil {
		t.Fatalf("first DeregisterConnection failed: %v", err)
	}
	if err := m.DeregisterConnection(conn.ID()); err != nil {
		t.Fatalf("second DeregisterConnection = %v, want nil", err)
	}
	if got := len(m.AllConnections()); got != 0 {
		t.Errorf("registry size after double remove = %d, want 0", got)
	}
}

func TestUserConnectionCountAndOldest(t *testing.T) {
	m := newTestManager(state.DropSkip)

	first := register(t, m, 1, "alice")
	register(t, m, 1, "alice")
	register(t, m, 2, "bob")

	if got := m.UserConnectionCount(1); got != 2 {
		t.Errorf("UserConnectionCount(1) = %d, want 2", got)
	}
	if got := m.UserConnectionCount(99); got != 0 {
		t.Errorf("UserConnectionCount(99) = %d, want 0", got)
	}

	oldest, found := m.FindOldestUserConnection(1)
	if !found || oldest.ID != first.ID() {
		t.Errorf("FindOldestUserConnection did not return the first registered connection")
	}
	if _, found := m.FindOldestUserConnection(99); found {
		t.Error("FindOldestUserConnection found a connection for an unknown user")
	}
}

// --- Presence Tests ---

func TestPresenceDistinctFirstJoinOrder(t *testing.T) {
	m := newTestManager(state.DropSkip)

	aliceFirst := register(t, m, 1, "alice")
	register(t, m, 2, "bob")
	aliceSecond := register(t, m, 1, "alice") // second device
	register(t, m, 3, "carol")

	want := []string{"alice", "bob", "carol"}
	if got := m.SnapshotPresence(); !reflect.DeepEqual(got, want) {
		t.Errorf("SnapshotPresence() = %v, want %v", got, want)
	}

	// One device leaving does not remove the user.
	m.DeregisterConnection(aliceFirst.ID())
	if got := m.SnapshotPresence(); !reflect.DeepEqual(got, want) {
		t.Errorf("SnapshotPresence() after one device left = %v, want %v", got, want)
	}

	// All devices gone: the name disappears.
	m.DeregisterConnection(aliceSecond.ID())
	want = []string{"bob", "carol"}
	if got := m.SnapshotPresence(); !reflect.DeepEqual(got, want) {
		t.Errorf("SnapshotPresence() after user left = %v, want %v", got, want)
	}
}

// --- Broadcaster Tests ---

func TestJoinRequiresRegistration(t *testing.T) {
	m := newTestManager(state.DropSkip)
	conn := newTransportConn(1)
	if err := m.Join("room", conn.ID()); err == nil {
		t.Error("Join with unregistered connection should fail")
	}
}

func TestPublishFanOut(t *testing.T) {
	m := newTestManager(state.DropSkip)

	var conns []*transport.Connection
	for i := int64(1); i <= 3; i++ {
		conn := register(t, m, i, fmt.Sprintf("user-%d", i))
		if err := m.Join("room", conn.ID()); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		conns = append(conns, conn)
	}

	if got := m.Publish("room", []byte("hello")); got != 3 {
		t.Errorf("Publish attempts = %d, want 3", got)
	}

	// A member that left no longer receives publishes.
	m.Leave("room", conns[0].ID())
	if got := m.Publish("room", []byte("hello")); got != 2 {
		t.Errorf("Publish attempts after leave = %d, want 2", got)
	}

	// Leave is idempotent.
	m.Leave("room", conns[0].ID())
	m.Leave("missing-room", conns[1].ID())

	if got := m.Publish("missing-room", nil); got != 0 {
		t.Errorf("Publish to unknown room = %d attempts, want 0", got)
	}
}

func TestPublishSkipsSaturatedRecipient(t *testing.T) {
	m := newTestManager(state.DropSkip)

	slow := register(t, m, 1, "slow")
	fast := register(t, m, 2, "fast")
	for _, conn := range []*transport.Connection{slow, fast} {
		if err := m.Join("room", conn.ID()); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	// Saturate the slow recipient's queue.
	for slow.TrySend([]byte("fill")) {
	}

	done := make(chan int, 1)
	go func() {
		done <- m.Publish("room", []byte("event"))
	}()

	select {
	case attempts := <-done:
		if attempts != 2 {
			t.Errorf("Publish attempts = %d, want 2", attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a saturated recipient")
	}

	// The skip policy keeps the slow connection alive.
	select {
	case <-slow.Done():
		t.Error("skip policy closed the slow connection")
	default:
	}
}

func TestPublishDisconnectsSaturatedRecipient(t *testing.T) {
	m := newTestManager(state.DropDisconnect)

	slow := register(t, m, 1, "slow")
	if err := m.Join("room", slow.ID()); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	for slow.TrySend([]byte("fill")) {
	}
	m.Publish("room", []byte("event"))

	select {
	case <-slow.Done():
	case <-time.After(2 * time.Second):
		t.Error("disconnect policy did not close the slow connection")
	}
}

// --- Concurrency ---

func TestConcurrentRegistryAccess(t *testing.T) {
	m := newTestManager(state.DropSkip)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			conn := newTransportConn(4)
			if _, err := m.RegisterConnection(conn, state.Identity{UserID: userID, Username: fmt.Sprintf("user-%d", userID)}); err != nil {
				t.Errorf("RegisterConnection failed: %v", err)
				return
			}
			if err := m.Join("room", conn.ID()); err != nil {
				t.Errorf("Join failed: %v", err)
				return
			}
			m.Publish("room", []byte("ping"))
			m.SnapshotPresence()
			m.Leave("room", conn.ID())
			if err := m.DeregisterConnection(conn.ID()); err != nil {
				t.Errorf("DeregisterConnection failed: %v", err)
			}
		}(int64(i % 10))
	}
	wg.Wait()

	if got := len(m.AllConnections()); got != 0 {
		t.Errorf("registry size after concurrent churn = %d, want 0", got)
	}
	if got := m.SnapshotPresence(); len(got) != 0 {
		t.Errorf("presence after concurrent churn = %v, want empty", got)
	}
}
