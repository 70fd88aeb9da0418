package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ahdev/chatgate/pkg/state"
	"github.com/ahdev/chatgate/pkg/transport"
	"github.com/google/uuid"
)

// ErrSendBufferFull is the close reason handed to a connection dropped
// under the disconnect policy.
var ErrSendBufferFull = errors.New("outbound buffer full")

type InMemoryManager struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*state.Connection
	// registration order; drives first-join presence ordering.
	order []uuid.UUID
	rooms map[string]map[uuid.UUID]*state.Connection

	policy state.DropPolicy
	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger, policy state.DropPolicy) *InMemoryManager {
	if policy == "" {
		policy = state.DropSkip
	}
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		rooms:  make(map[string]map[uuid.UUID]*state.Connection),
		policy: policy,
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(conn *transport.Connection, ident state.Identity) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := conn.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := &state.Connection{
		ID:        connID,
		Identity:  ident,
		Transport: conn,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.order = append(m.order, connID)
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()), slog.Int64("userID", ident.UserID))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[connID]; !ok {
		// already deregistered
		return nil
	}
	delete(m.conns, connID)
	for i, id := range m.order {
		if id == connID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	// Membership is a subset of live registry entries; clean it up eagerly.
	for roomID, members := range m.rooms {
		if _, ok := members[connID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(m.rooms, roomID)
			}
		}
	}
	m.logger.Debug("Connection deregistered", "connID", connID.String())
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) FindOldestUserConnection(userID int64) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		conn := m.conns[id]
		if conn != nil && conn.Identity.UserID == userID {
			return conn, true
		}
	}
	return nil, false
}

func (m *InMemoryManager) UserConnectionCount(userID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, conn := range m.conns {
		if conn.Identity.UserID == userID {
			count++
		}
	}
	return count
}

func (m *InMemoryManager) AllConnections() []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (m *InMemoryManager) SnapshotPresence() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]bool, len(m.order))
	names := make([]string, 0, len(m.order))
	for _, id := range m.order {
		conn := m.conns[id]
		if conn == nil || seen[conn.Identity.UserID] {
			continue
		}
		seen[conn.Identity.UserID] = true
		names = append(names, conn.Identity.Username)
	}
	return names
}

// --- Group Broadcaster ---

func (m *InMemoryManager) Join(room string, connID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return errors.New("cannot join room: connection not registered")
	}

	members, exists := m.rooms[room]
	if !exists {
		members = make(map[uuid.UUID]*state.Connection)
		m.rooms[room] = members
	}
	members[connID] = conn

	m.logger.Debug("Connection joined room", "connID", connID.String(), "roomID", room)
	return nil
}

func (m *InMemoryManager) Leave(room string, connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)

	// For memory hygiene, remove the room if it's now empty.
	if len(members) == 0 {
		delete(m.rooms, room)
		m.logger.Debug("Removed empty room", "roomID", room)
	}
}

// Publish snapshots the membership under the read lock, then delivers
// outside it so no recipient's socket or buffer is ever touched while a
// lock is held.
func (m *InMemoryManager) Publish(room string, payload []byte) int {
	m.mu.RLock()
	members := m.rooms[room]
	targets := make([]*state.Connection, 0, len(members))
	for _, conn := range members {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	for _, conn := range targets {
		if conn.Transport.TrySend(payload) {
			continue
		}
		switch m.policy {
		case state.DropDisconnect:
			m.logger.Warn("Recipient send buffer full; disconnecting",
				slog.String("connID", conn.ID.String()),
				slog.Int64("userID", conn.Identity.UserID),
			)
			conn.Transport.Close(ErrSendBufferFull)
		default:
			m.logger.Warn("Recipient send buffer full; event dropped for this recipient",
				slog.String("connID", conn.ID.String()),
				slog.Int64("userID", conn.Identity.UserID),
			)
		}
	}
	return len(targets)
}
