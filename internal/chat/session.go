// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Transport is the outbound half of one client connection.
type Transport interface {
	// Enqueue hands an encoded frame to the connection writer. It must not
	// block; an error means the frame was not accepted.
	Enqueue(frame []byte) error
	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Liveness is the lifecycle state of a session.
type Liveness int32

const (
	LivenessOpen Liveness = iota
	LivenessClosing
	LivenessClosed
)

func (l Liveness) String() string {
	switch l {
	case LivenessOpen:
		return "open"
	case LivenessClosing:
		return "closing"
	case LivenessClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DeliveryResult is the outcome of handing one frame to a session.
type DeliveryResult int

const (
	Delivered DeliveryResult = iota
	Dropped
)

// Session is one admitted connection in one room.
type Session struct {
	id        ulid.ULID
	room      RoomKind
	identity  Identity
	transport Transport
	joinedAt  time.Time
	liveness  atomic.Int32
}

func newSession(room RoomKind, identity Identity, transport Transport, now time.Time) *Session {
	return &Session{
		id:        NewULID(now),
		room:      room,
		identity:  identity,
		transport: transport,
		joinedAt:  now,
	}
}

// ID returns the connection id.
func (s *Session) ID() ulid.ULID { return s.id }

// Room returns the room the session was admitted to.
func (s *Session) Room() RoomKind { return s.room }

// Identity returns the identity bound at admission.
func (s *Session) Identity() Identity { return s.identity }

// JoinedAt returns the admission time.
func (s *Session) JoinedAt() time.Time { return s.joinedAt }

// Liveness returns the current lifecycle state.
func (s *Session) Liveness() Liveness { return Liveness(s.liveness.Load()) }

// IsLive reports whether the session still receives frames.
func (s *Session) IsLive() bool { return s.Liveness() == LivenessOpen }

// deliver hands frame to the transport. A failed delivery moves the session
// to closing so it receives nothing further.
func (s *Session) deliver(frame []byte) DeliveryResult {
	if !s.IsLive() {
		return Dropped
	}
	if err := s.transport.Enqueue(frame); err != nil {
		s.liveness.CompareAndSwap(int32(LivenessOpen), int32(LivenessClosing))
		return Dropped
	}
	return Delivered
}

// close marks the session closed and releases its transport.
func (s *Session) close() {
	if Liveness(s.liveness.Swap(int32(LivenessClosed))) == LivenessClosed {
		return
	}
	_ = s.transport.Close()
}
