package state

import (
	"github.com/ahdev/chatgate/pkg/transport"
	"github.com/google/uuid"
)

// DropPolicy decides what happens to a recipient whose outbound buffer
// refuses a published event.
type DropPolicy string

const (
	// DropSkip drops the event for that recipient only.
	DropSkip DropPolicy = "skip"
	// DropDisconnect closes the lagging connection.
	DropDisconnect DropPolicy = "disconnect"
)

// Manager is the single shared unit holding the connection registry and the
// group broadcaster. All mutation is funneled through it; callers never see
// its internal maps.
type Manager interface {
	// --- Connection Registry ---
	// RegisterConnection records an authenticated connection. An entry
	// exists exactly while the owning session is joined.
	RegisterConnection(conn *transport.Connection, ident Identity) (*Connection, error)
	// DeregisterConnection is a no-op for unknown handles, so duplicate
	// disconnect signals are harmless.
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)
	FindOldestUserConnection(userID int64) (*Connection, bool)
	UserConnectionCount(userID int64) int
	AllConnections() []*Connection

	// SnapshotPresence returns one display name per distinct connected
	// user, in first-join order, from a consistent point-in-time view.
	SnapshotPresence() []string

	// --- Group Broadcaster ---
	Join(room string, connID uuid.UUID) error
	Leave(room string, connID uuid.UUID)
	// Publish hands the payload to every member joined at the moment of
	// publish via a non-blocking per-recipient handoff, and returns the
	// number of delivery attempts.
	Publish(room string, payload []byte) int
}
