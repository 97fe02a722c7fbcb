// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/todochat/internal/chat"
)

// redisRecord is the sorted-set member stored per message. Field order is
// fixed so re-appending a message yields an identical member.
type redisRecord struct {
	ID          string `json:"id"`
	AuthorType  string `json:"authorType"`
	AuthorID    string `json:"authorId"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail,omitempty"`
	Body        string `json:"body"`
	AvatarKey   string `json:"avatarKey,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

// RedisMessageStore implements chat.MessageStore with one sorted set per
// room, scored by creation time in milliseconds.
type RedisMessageStore struct {
	client *redis.Client
	maxLen int64
}

// NewRedisMessageStore connects to redisURL and waits until it answers.
// maxLen caps the messages kept per room; zero keeps everything.
func NewRedisMessageStore(ctx context.Context, redisURL string, maxLen int64, retryCfg RetryConfig) (*RedisMessageStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("backend", "redis").Wrap(err)
	}
	client := redis.NewClient(opts)

	if err := pingWithRetry(ctx, retryCfg, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").With("backend", "redis").Wrap(err)
	}
	return NewRedisMessageStoreFromClient(client, maxLen), nil
}

// NewRedisMessageStoreFromClient wraps an existing client.
func NewRedisMessageStoreFromClient(client *redis.Client, maxLen int64) *RedisMessageStore {
	return &RedisMessageStore{client: client, maxLen: maxLen}
}

// Close closes the Redis connection.
func (s *RedisMessageStore) Close() error {
	return s.client.Close()
}

func roomMessagesKey(room chat.RoomKind) string {
	return fmt.Sprintf("chat:%s:messages", room)
}

// Append adds msg to the room's sorted set and trims it to maxLen.
func (s *RedisMessageStore) Append(ctx context.Context, room chat.RoomKind, msg chat.Message) error {
	data, err := json.Marshal(redisRecord{
		ID:          msg.ID.String(),
		AuthorType:  string(msg.AuthorType),
		AuthorID:    msg.AuthorID,
		AuthorName:  msg.AuthorName,
		AuthorEmail: msg.AuthorEmail,
		Body:        msg.Body,
		AvatarKey:   msg.AvatarRef,
		CreatedAt:   msg.CreatedAtMillis(),
	})
	if err != nil {
		return oops.Code("STORE_APPEND_FAILED").With("room", room).Wrap(err)
	}

	key := roomMessagesKey(room)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(msg.CreatedAtMillis()), Member: string(data)})
		if s.maxLen > 0 {
			pipe.ZRemRangeByRank(ctx, key, 0, -s.maxLen-1)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_APPEND_FAILED").
			With("room", room).
			With("message_id", msg.ID.String()).
			Wrap(err)
	}
	return nil
}

// RecentTail returns up to limit of the newest messages in a room, oldest first.
func (s *RedisMessageStore) RecentTail(ctx context.Context, room chat.RoomKind, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	results, err := s.client.ZRevRange(ctx, roomMessagesKey(room), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("room", room).Wrap(err)
	}

	msgs := make([]chat.Message, 0, len(results))
	for _, data := range results {
		msg, err := decodeRedisRecord(data)
		if err != nil {
			slog.Warn("skipping corrupt chat message", "room", room, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func decodeRedisRecord(data string) (chat.Message, error) {
	var rec redisRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return chat.Message{}, err
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID:          id,
		AuthorType:  chat.AuthorType(rec.AuthorType),
		AuthorID:    rec.AuthorID,
		AuthorName:  rec.AuthorName,
		AuthorEmail: rec.AuthorEmail,
		Body:        rec.Body,
		AvatarRef:   rec.AvatarKey,
		CreatedAt:   time.UnixMilli(rec.CreatedAt),
	}, nil
}
