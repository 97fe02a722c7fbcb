// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/todochat/internal/chat"
)

// PostgresMessageStore implements chat.MessageStore using PostgreSQL.
type PostgresMessageStore struct {
	pool Querier
}

// NewPostgresMessageStore creates a message store over pool.
func NewPostgresMessageStore(pool Querier) *PostgresMessageStore {
	return &PostgresMessageStore{pool: pool}
}

// Append persists a message. A message whose ID is already stored is
// treated as persisted.
func (s *PostgresMessageStore) Append(ctx context.Context, room chat.RoomKind, msg chat.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, room, author_type, author_id, author_name, author_email, body, avatar_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID.String(),
		string(room),
		string(msg.AuthorType),
		msg.AuthorID,
		msg.AuthorName,
		msg.AuthorEmail,
		msg.Body,
		msg.AvatarRef,
		msg.CreatedAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return nil
		case pgerrcode.CheckViolation:
			return oops.Code("STORE_INVALID_MESSAGE").
				With("room", room).
				With("message_id", msg.ID.String()).
				With("constraint", pgErr.ConstraintName).
				Wrap(err)
		}
	}
	return oops.Code("STORE_APPEND_FAILED").
		With("room", room).
		With("message_id", msg.ID.String()).
		Wrap(err)
}

// RecentTail returns up to limit of the newest messages in a room, oldest first.
func (s *PostgresMessageStore) RecentTail(ctx context.Context, room chat.RoomKind, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, author_type, author_id, author_name, author_email, body, avatar_key, created_at
		 FROM chat_messages WHERE room = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		string(room), limit)
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("room", room).Wrap(err)
	}
	defer rows.Close()

	msgs := make([]chat.Message, 0, limit)
	for rows.Next() {
		var (
			m          chat.Message
			id         string
			authorType string
			createdAt  time.Time
		)
		if err := rows.Scan(&id, &authorType, &m.AuthorID, &m.AuthorName, &m.AuthorEmail, &m.Body, &m.AvatarRef, &createdAt); err != nil {
			return nil, oops.Code("STORE_QUERY_FAILED").With("room", room).Wrap(err)
		}
		m.ID, err = ulid.Parse(id)
		if err != nil {
			return nil, oops.Code("STORE_CORRUPT_ROW").With("room", room).With("id", id).Wrap(err)
		}
		m.AuthorType = chat.AuthorType(authorType)
		m.CreatedAt = createdAt
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("room", room).Wrap(err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}
