package store

import (
	"sync"

	"github.com/ahdev/chatgate/pkg/state"
)

// Directory resolves user ids to identities. It stands in for the accounts
// service; entries are seeded from configuration at startup.
type Directory struct {
	mu    sync.RWMutex
	users map[int64]directoryEntry
}

type directoryEntry struct {
	ident  state.Identity
	active bool
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[int64]directoryEntry)}
}

// Add registers or replaces a directory entry.
func (d *Directory) Add(ident state.Identity, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[ident.UserID] = directoryEntry{ident: ident, active: active}
}

// ResolveUser reports false for unknown or inactive users, which the
// handshake treats as anonymous.
func (d *Directory) ResolveUser(userID int64) (state.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.users[userID]
	if !ok || !entry.active {
		return state.Identity{}, false
	}
	return entry.ident, true
}
