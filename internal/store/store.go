// Package store holds the gateway's external collaborators: message
// persistence and identity resolution.
package store

import (
	"context"
	"time"

	"github.com/ahdev/chatgate/pkg/state"
)

// Message is one persisted chat message.
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageStore persists chat messages. Append must be durable before it
// returns; the session publishes only after a successful Append.
type MessageStore interface {
	Append(ctx context.Context, ident state.Identity, body string) (Message, error)
	// Recent returns up to limit messages, oldest first.
	Recent(ctx context.Context, limit int) ([]Message, error)
	// DeleteAll removes every message and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)
}
