// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes returned by the hub.
const (
	CodeUnauthorized = "CHAT_UNAUTHORIZED"
	CodeForbidden    = "CHAT_FORBIDDEN"
	CodeHubStopped   = "CHAT_HUB_STOPPED"
	CodeEmptyMessage = "CHAT_EMPTY_MESSAGE"
	CodeCancelled    = "CHAT_CANCELLED"

	CodeUnknownRoom         = "CHAT_UNKNOWN_ROOM"
	CodeUnknownNotification = "CHAT_UNKNOWN_NOTIFICATION"
)

// ErrUnauthenticated is returned by an Authorizer when the credentials do
// not identify anyone.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrorCode extracts the oops code from err, or "" if it has none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

func errHubStopped(room RoomKind) error {
	return oops.Code(CodeHubStopped).With("room", room).Errorf("chat hub %s is not running", room)
}
