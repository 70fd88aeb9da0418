package chat

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ahdev/chatgate/internal/store"
	"github.com/ahdev/chatgate/pkg/state"
	"github.com/ahdev/chatgate/pkg/transport"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Broadcast encodes an event and fans it out to the room, returning the
// number of delivery attempts. Encoding failures are logged and dropped;
// they never propagate to the caller's session.
func Broadcast(logger *slog.Logger, manager state.Manager, room string, e Event) int {
	payload, err := Encode(e)
	if err != nil {
		logger.Error("Failed to encode event", slog.Any("error", err))
		return 0
	}
	return manager.Publish(room, payload)
}

// Session owns the lifecycle of one authenticated connection:
// register -> join -> receive loop -> teardown. Teardown runs exactly once
// even when triggered by concurrent close signals.
type Session struct {
	logger  *slog.Logger
	conn    *transport.Connection
	ident   state.Identity
	manager state.Manager
	store   store.MessageStore
	room    string
	maxBody int
}

func NewSession(logger *slog.Logger, conn *transport.Connection, ident state.Identity, manager state.Manager, msgStore store.MessageStore, room string, maxBody int) *Session {
	return &Session{
		logger: logger.With(
			slog.String("component", "session"),
			slog.String("connID", conn.ID().String()),
			slog.Int64("userID", ident.UserID),
		),
		conn:    conn,
		ident:   ident,
		manager: manager,
		store:   msgStore,
		room:    room,
		maxBody: maxBody,
	}
}

// Run registers the connection, joins the room, announces presence, and
// starts the transport pumps. The registry entry and room membership exist
// exactly while the connection is live.
func (s *Session) Run() error {
	if _, err := s.manager.RegisterConnection(s.conn, s.ident); err != nil {
		return err
	}
	if err := s.manager.Join(s.room, s.conn.ID()); err != nil {
		s.manager.DeregisterConnection(s.conn.ID())
		return err
	}

	s.conn.SetOnMessageHandler(s.handleInbound)
	s.conn.SetOnCloseHandler(s.handleClose)

	// Presence is published strictly after the registry mutation, so no
	// recipient ever sees a list inconsistent with the join it was told
	// about.
	Broadcast(s.logger, s.manager, s.room, Presence{Users: s.manager.SnapshotPresence()})

	s.conn.Run()
	s.logger.Info("Session joined", slog.String("room", s.room), slog.String("username", s.ident.Username))
	return nil
}

// handleInbound processes one client frame. Malformed, empty, or
// over-length payloads are dropped silently; persistence failures drop the
// one message. Neither terminates the session.
func (s *Session) handleInbound(ctx context.Context, connID uuid.UUID, raw []byte) {
	body := strings.TrimSpace(gjson.GetBytes(raw, "message").String())
	if body == "" || utf8.RuneCountInString(body) > s.maxBody {
		s.logger.Debug("Dropping empty or over-length message", slog.Int("bytes", len(raw)))
		return
	}

	saved, err := s.store.Append(ctx, s.ident, body)
	if err != nil {
		s.logger.Error("Failed to persist message", slog.Any("error", err))
		return
	}

	// Publish is sequenced after persistence succeeds; a crash in between
	// can leave a stored-but-unannounced message, never the reverse.
	Broadcast(s.logger, s.manager, s.room, Message{
		ID:        saved.ID,
		UserID:    saved.UserID,
		Username:  saved.Username,
		Body:      saved.Body,
		Timestamp: saved.Timestamp,
	})
}

// handleClose tears the session down: registry removal, room leave, then a
// presence broadcast reflecting the departure. The transport guarantees it
// runs at most once.
func (s *Session) handleClose(connID uuid.UUID, err error) {
	if dErr := s.manager.DeregisterConnection(connID); dErr != nil {
		s.logger.Error("Failed to deregister connection", slog.Any("error", dErr))
	}
	s.manager.Leave(s.room, connID)
	Broadcast(s.logger, s.manager, s.room, Presence{Users: s.manager.SnapshotPresence()})
	s.logger.Info("Session closed", slog.Any("reason", err))
}
