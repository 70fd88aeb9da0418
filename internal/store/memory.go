package store

import (
	"context"
	"sync"
	"time"

	"github.com/ahdev/chatgate/pkg/state"
)

// MemoryStore keeps messages in process memory. It backs standalone runs
// and tests.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	msgs   []Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ MessageStore = (*MemoryStore)(nil)

func (s *MemoryStore) Append(ctx context.Context, ident state.Identity, body string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := Message{
		ID:        s.nextID,
		UserID:    ident.UserID,
		Username:  ident.Username,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
	s.msgs = append(s.msgs, msg)
	return msg, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.msgs) {
		limit = len(s.msgs)
	}
	out := make([]Message, limit)
	copy(out, s.msgs[len(s.msgs)-limit:])
	return out, nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := int64(len(s.msgs))
	s.msgs = nil
	return count, nil
}
