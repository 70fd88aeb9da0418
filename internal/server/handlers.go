package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ahdev/chatgate/internal/chat"
)

const historyLimitCeiling = 100

type messageRecord struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	UserID    int64  `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// handleGetMessages serves recent chat history, oldest first.
func (a *App) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	limit := a.config.Chat.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > historyLimitCeiling {
		limit = historyLimitCeiling
	}

	msgs, err := a.store.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error("Failed to retrieve messages", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve messages", map[string]string{"detail": err.Error()})
		return
	}

	data := make([]messageRecord, 0, len(msgs))
	for _, msg := range msgs {
		data = append(data, messageRecord{
			ID:        msg.ID,
			Message:   msg.Body,
			Username:  msg.Username,
			UserID:    msg.UserID,
			Timestamp: msg.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	writeSuccess(w, "Messages retrieved successfully", data)
}

// handleClearMessages deletes all persisted history and tells every joined
// client to discard its local copy. The broadcast itself has no persistence
// side effect.
func (a *App) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	count, err := a.store.DeleteAll(r.Context())
	if err != nil {
		a.logger.Error("Failed to delete messages", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to delete messages", map[string]string{"detail": err.Error()})
		return
	}

	chat.Broadcast(a.logger, a.manager, a.config.Chat.Room, chat.ClearAll{})

	a.logger.Info("All messages deleted", slog.Int64("count", count))
	writeSuccess(w, fmt.Sprintf("All messages deleted successfully (%d messages)", count), nil)
}

// handleOnlineUsers serves the presence snapshot: distinct display names in
// first-join order.
func (a *App) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, "Online users retrieved successfully", a.manager.SnapshotPresence())
}
