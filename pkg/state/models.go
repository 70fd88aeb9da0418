package state

import (
	"time"

	"github.com/ahdev/chatgate/pkg/transport"
	"github.com/google/uuid"
)

// Identity is the resolved user attached to an authenticated connection.
// It is fixed at handshake time and immutable for the life of the
// connection.
type Identity struct {
	UserID      int64
	Username    string
	Permissions Permission
}

// Anonymous reports whether this identity failed (or skipped) the
// handshake. Anonymous is a valid outcome, not an error; sessions deny
// anonymous identities the chat resource by closing the connection.
func (i Identity) Anonymous() bool {
	return i.UserID == 0
}

// Connection is the registry's view of one live transport connection.
type Connection struct {
	ID        uuid.UUID
	Identity  Identity
	Transport *transport.Connection
	CreatedAt time.Time
}
