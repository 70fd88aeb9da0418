package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahdev/chatgate/pkg/state"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists messages in a Redis list, with ids allocated from a
// counter key. Append returns only after the write is acknowledged.
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger

	listKey string
	idKey   string
}

func NewRedisStore(rdb *redis.Client, logger *slog.Logger, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "chatgate"
	}
	return &RedisStore{
		rdb:     rdb,
		logger:  logger.With(slog.String("component", "redis_store")),
		listKey: keyPrefix + ":messages",
		idKey:   keyPrefix + ":message_id",
	}
}

var _ MessageStore = (*RedisStore)(nil)

func (s *RedisStore) Append(ctx context.Context, ident state.Identity, body string) (Message, error) {
	id, err := s.rdb.Incr(ctx, s.idKey).Result()
	if err != nil {
		return Message{}, fmt.Errorf("allocate message id: %w", err)
	}

	msg := Message{
		ID:        id,
		UserID:    ident.UserID,
		Username:  ident.Username,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	if err := s.rdb.RPush(ctx, s.listKey, data).Err(); err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := s.rdb.LRange(ctx, s.listKey, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn("Skipping undecodable stored message", slog.Any("error", err))
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) DeleteAll(ctx context.Context) (int64, error) {
	count, err := s.rdb.LLen(ctx, s.listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	if err := s.rdb.Del(ctx, s.listKey).Err(); err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return count, nil
}
