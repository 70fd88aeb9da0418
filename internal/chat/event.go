// Package chat implements the per-connection session loop and the closed
// set of events it fans out to the room.
package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the closed set of things broadcast to a room. Exactly three
// kinds exist; Encode matches them exhaustively so a new kind cannot slip
// through unformatted.
type Event interface {
	kind() string
}

// Message is a chat message, published only after it has been persisted.
type Message struct {
	ID        int64
	UserID    int64
	Username  string
	Body      string
	Timestamp time.Time
}

// Presence carries the full recomputed list of distinct connected users,
// first-join order. It is not a delta.
type Presence struct {
	Users []string
}

// ClearAll instructs clients to discard local history. It has no
// persistence side effect of its own.
type ClearAll struct{}

func (Message) kind() string  { return "message" }
func (Presence) kind() string { return "presence" }
func (ClearAll) kind() string { return "clear_all" }

type messageEnvelope struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	UserID    int64  `json:"user_id"`
	Timestamp string `json:"timestamp"`
	MessageID int64  `json:"message_id"`
}

type presenceEnvelope struct {
	Kind  string   `json:"kind"`
	Users []string `json:"users"`
}

type clearAllEnvelope struct {
	Kind string `json:"kind"`
}

// Encode serializes an event into its wire envelope.
func Encode(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case Message:
		return json.Marshal(messageEnvelope{
			Kind:      ev.kind(),
			Message:   ev.Body,
			Username:  ev.Username,
			UserID:    ev.UserID,
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
			MessageID: ev.ID,
		})
	case Presence:
		users := ev.Users
		if users == nil {
			users = []string{}
		}
		return json.Marshal(presenceEnvelope{Kind: ev.kind(), Users: users})
	case ClearAll:
		return json.Marshal(clearAllEnvelope{Kind: ev.kind()})
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}
}
