// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"strings"
	"time"
)

// GuestDisplayName is the display name given to every synthesized guest.
const GuestDisplayName = "Guest"

// Identity is a resolved chat participant.
type Identity struct {
	ID          string
	DisplayName string
	Email       string
	AvatarRef   string
	IsGuest     bool
	IsAdmin     bool
}

// CanPost reports whether the identity may post messages.
func (i Identity) CanPost() bool {
	return !i.IsGuest
}

// CanType reports whether the identity may send typing indicators.
func (i Identity) CanType() bool {
	return !i.IsGuest
}

// SystemIdentity authors messages pushed through the system trigger.
var SystemIdentity = Identity{ID: "system", DisplayName: "System"}

// NewGuestIdentity synthesizes a read-only guest identity.
func NewGuestIdentity() Identity {
	return Identity{
		ID:          "guest_" + strings.ToLower(NewULID(time.Now()).String()),
		DisplayName: GuestDisplayName,
		IsGuest:     true,
	}
}
