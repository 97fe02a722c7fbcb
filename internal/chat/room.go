// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import "github.com/samber/oops"

// RoomKind names one of the chat rooms.
type RoomKind string

const (
	RoomAdmin  RoomKind = "admin-chat"
	RoomPublic RoomKind = "public-chat"
)

// Policy describes who may join a room.
type Policy struct {
	// AllowGuests admits unauthenticated connections as read-only guests.
	AllowGuests bool
	// RequireAdmin rejects authenticated identities that are not admins.
	RequireAdmin bool
}

// Policy returns the admission policy for the room.
func (k RoomKind) Policy() Policy {
	switch k {
	case RoomAdmin:
		return Policy{RequireAdmin: true}
	case RoomPublic:
		return Policy{AllowGuests: true}
	default:
		return Policy{}
	}
}

func (k RoomKind) String() string {
	return string(k)
}

// ParseRoomKind maps a room name to a RoomKind.
func ParseRoomKind(name string) (RoomKind, error) {
	switch RoomKind(name) {
	case RoomAdmin, RoomPublic:
		return RoomKind(name), nil
	default:
		return "", oops.Code(CodeUnknownRoom).With("room", name).Errorf("unknown room %q", name)
	}
}
