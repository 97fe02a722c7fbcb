// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package chat implements the per-room broadcast hub behind the admin and
// public chat rooms.
package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Room limits.
const (
	// MaxBodyLength is the maximum message body length in characters, after trimming.
	MaxBodyLength = 1000

	// HistoryCacheSize is the number of messages a room keeps in memory.
	HistoryCacheSize = 100

	// HistorySnapshotSize is the number of cached messages sent to a newly admitted session.
	HistorySnapshotSize = 50
)

// AuthorType identifies who authored a message.
type AuthorType string

const (
	AuthorUser   AuthorType = "user"
	AuthorSystem AuthorType = "system"
)

// Message is a single chat message. Messages are immutable once created.
type Message struct {
	ID          ulid.ULID
	AuthorType  AuthorType
	AuthorID    string
	AuthorName  string
	AuthorEmail string // persisted, never sent to clients
	Body        string
	AvatarRef   string // object storage key, not a URL
	CreatedAt   time.Time
}

// CreatedAtMillis returns the creation time in Unix milliseconds.
func (m Message) CreatedAtMillis() int64 {
	return m.CreatedAt.UnixMilli()
}

// NormalizeBody trims raw and truncates it to MaxBodyLength characters.
// Returns false if nothing is left after trimming.
func NormalizeBody(raw string) (string, bool) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return "", false
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		body = string([]rune(body)[:MaxBodyLength])
	}
	return body, true
}

// newMessage builds a message authored by identity at now.
func newMessage(identity Identity, kind AuthorType, body string, now time.Time) Message {
	// Millisecond precision so cached and stored copies compare equal.
	created := time.UnixMilli(now.UnixMilli())
	return Message{
		ID:          NewULID(created),
		AuthorType:  kind,
		AuthorID:    identity.ID,
		AuthorName:  identity.DisplayName,
		AuthorEmail: identity.Email,
		Body:        body,
		AvatarRef:   identity.AvatarRef,
		CreatedAt:   created,
	}
}
