// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"slices"

	"github.com/oklog/ulid/v2"
)

// RoomState is the in-memory state of one room. It is not safe for
// concurrent use; the owning Hub serializes all access.
type RoomState struct {
	sessions    []*Session // admission order
	typing      map[string]struct{}
	history     []Message
	initialized bool
	lastTyping  []string
}

// NewRoomState creates an empty, uninitialized room.
func NewRoomState() *RoomState {
	return &RoomState{
		typing:     make(map[string]struct{}),
		lastTyping: []string{},
	}
}

// AddSession adds s to the roster. Returns false if it is already present.
func (r *RoomState) AddSession(s *Session) bool {
	if r.HasSession(s.ID()) {
		return false
	}
	r.sessions = append(r.sessions, s)
	return true
}

// RemoveSession removes the session with id from the roster.
func (r *RoomState) RemoveSession(id ulid.ULID) (*Session, bool) {
	for i, s := range r.sessions {
		if s.ID() == id {
			r.sessions = slices.Delete(r.sessions, i, i+1)
			return s, true
		}
	}
	return nil, false
}

// HasSession reports whether id is in the roster.
func (r *RoomState) HasSession(id ulid.ULID) bool {
	for _, s := range r.sessions {
		if s.ID() == id {
			return true
		}
	}
	return false
}

// HasIdentity reports whether any session in the roster belongs to identityID.
func (r *RoomState) HasIdentity(identityID string) bool {
	for _, s := range r.sessions {
		if s.Identity().ID == identityID {
			return true
		}
	}
	return false
}

// Sessions returns a copy of the roster in admission order.
func (r *RoomState) Sessions() []*Session {
	return slices.Clone(r.sessions)
}

// Len returns the number of sessions in the roster.
func (r *RoomState) Len() int {
	return len(r.sessions)
}

// Initialized reports whether history has been loaded.
func (r *RoomState) Initialized() bool {
	return r.initialized
}

// Initialize seeds the history cache with msgs (oldest first) and marks the
// room initialized. Only the newest HistoryCacheSize messages are kept.
func (r *RoomState) Initialize(msgs []Message) {
	if len(msgs) > HistoryCacheSize {
		msgs = msgs[len(msgs)-HistoryCacheSize:]
	}
	r.history = append(slices.Clone(msgs), r.history...)
	r.trimHistory()
	r.initialized = true
}

// AppendHistory adds m to the cache, evicting the oldest entry past the cap.
func (r *RoomState) AppendHistory(m Message) {
	r.history = append(r.history, m)
	r.trimHistory()
}

func (r *RoomState) trimHistory() {
	if over := len(r.history) - HistoryCacheSize; over > 0 {
		r.history = slices.Delete(r.history, 0, over)
	}
}

// SnapshotTail returns a copy of the newest n cached messages, oldest first.
func (r *RoomState) SnapshotTail(n int) []Message {
	if n <= 0 {
		return []Message{}
	}
	start := max(len(r.history)-n, 0)
	return slices.Clone(r.history[start:])
}

// SetTypingFlag sets or clears the typing flag for identityID. Returns true
// if the flag changed.
func (r *RoomState) SetTypingFlag(identityID string, typing bool) bool {
	_, present := r.typing[identityID]
	switch {
	case typing && !present:
		r.typing[identityID] = struct{}{}
		return true
	case !typing && present:
		delete(r.typing, identityID)
		return true
	default:
		return false
	}
}

// TypingDisplayNames returns one display name per typing identity that still
// has a session in the roster, in admission order.
func (r *RoomState) TypingDisplayNames() []string {
	names := []string{}
	seen := make(map[string]struct{}, len(r.typing))
	for _, s := range r.sessions {
		id := s.Identity().ID
		if _, ok := r.typing[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		names = append(names, s.Identity().DisplayName)
	}
	return names
}

// OnlineDisplayNames returns the display name of every session in the
// roster, in admission order. An identity with several sessions appears
// once per session.
func (r *RoomState) OnlineDisplayNames() []string {
	names := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		names = append(names, s.Identity().DisplayName)
	}
	return names
}

// typingChanged recomputes the typing names and reports whether they differ
// from the last value it returned.
func (r *RoomState) typingChanged() ([]string, bool) {
	names := r.TypingDisplayNames()
	if slices.Equal(names, r.lastTyping) {
		return names, false
	}
	r.lastTyping = names
	return names, true
}
