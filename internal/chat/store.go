// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"context"
	"slices"
	"sync"
)

// MessageStore persists room messages.
type MessageStore interface {
	// Append persists a message. Appending a message whose ID is already
	// stored is a no-op.
	Append(ctx context.Context, room RoomKind, msg Message) error

	// RecentTail returns up to limit of the newest messages in a room,
	// oldest first.
	RecentTail(ctx context.Context, room RoomKind, limit int) ([]Message, error)
}

// MemoryMessageStore is an in-memory MessageStore for testing.
type MemoryMessageStore struct {
	mu    sync.RWMutex
	rooms map[RoomKind][]Message
}

// NewMemoryMessageStore creates a new in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		rooms: make(map[RoomKind][]Message),
	}
}

// Append persists a message to the in-memory store.
func (s *MemoryMessageStore) Append(_ context.Context, room RoomKind, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rooms[room] {
		if existing.ID == msg.ID {
			return nil
		}
	}
	s.rooms[room] = append(s.rooms[room], msg)
	return nil
}

// RecentTail returns the newest messages of a room, oldest first.
func (s *MemoryMessageStore) RecentTail(_ context.Context, room RoomKind, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.rooms[room]
	if limit <= 0 || len(msgs) == 0 {
		return []Message{}, nil
	}
	start := max(len(msgs)-limit, 0)
	return slices.Clone(msgs[start:]), nil
}

// Len returns the number of stored messages in a room.
func (s *MemoryMessageStore) Len(room RoomKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room])
}
