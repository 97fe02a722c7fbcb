// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// Credentials carry whatever the client presented on connect.
type Credentials struct {
	Token      string
	RemoteAddr string
	UserAgent  string
}

// Authorizer resolves credentials to an identity.
//
// Implementations return an error wrapping ErrUnauthenticated when the
// credentials are missing, invalid, or expired.
type Authorizer interface {
	Resolve(ctx context.Context, creds Credentials) (Identity, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, creds Credentials) (Identity, error)

// Resolve calls f.
func (f AuthorizerFunc) Resolve(ctx context.Context, creds Credentials) (Identity, error) {
	return f(ctx, creds)
}

// authorize applies a room policy to the authorizer's answer.
func authorize(ctx context.Context, authz Authorizer, room RoomKind, creds Credentials) (Identity, error) {
	policy := room.Policy()

	identity, err := authz.Resolve(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) && policy.AllowGuests {
			return NewGuestIdentity(), nil
		}
		// Not wrapped: a code carried by err would shadow CodeUnauthorized.
		return Identity{}, oops.Code(CodeUnauthorized).With("room", room).Errorf("authorization failed: %v", err)
	}

	if policy.RequireAdmin && !identity.IsAdmin {
		return Identity{}, oops.Code(CodeForbidden).
			With("room", room).
			With("user_id", identity.ID).
			Errorf("admin access required")
	}
	return identity, nil
}
