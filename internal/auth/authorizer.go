// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/todochat/internal/chat"
)

// Authorizer implements chat.Authorizer over web sessions and users.
type Authorizer struct {
	sessions WebSessionRepository
	users    UserRepository
	admins   *AdminMatcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthorizer creates an Authorizer. admins may be nil.
func NewAuthorizer(sessions WebSessionRepository, users UserRepository, admins *AdminMatcher, logger *slog.Logger) (*Authorizer, error) {
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("sessions repository is required")
	}
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{
		sessions: sessions,
		users:    users,
		admins:   admins,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Resolve validates the session token in creds and loads its user.
// Missing, unknown, and expired tokens return errors wrapping
// chat.ErrUnauthenticated.
func (a *Authorizer) Resolve(ctx context.Context, creds chat.Credentials) (chat.Identity, error) {
	if creds.Token == "" {
		return chat.Identity{}, oops.Code("SESSION_TOKEN_EMPTY").Wrap(chat.ErrUnauthenticated)
	}

	session, err := a.sessions.GetByTokenHash(ctx, HashSessionToken(creds.Token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return chat.Identity{}, oops.Code("SESSION_INVALID").Wrap(chat.ErrUnauthenticated)
		}
		return chat.Identity{}, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := a.now()
	if session.IsExpiredAt(now) {
		return chat.Identity{}, oops.Code("SESSION_EXPIRED").
			With("session_id", session.ID).
			Wrap(chat.ErrUnauthenticated)
	}

	user, err := a.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return chat.Identity{}, oops.Code("USER_NOT_FOUND").
				With("user_id", session.UserID).
				Wrap(chat.ErrUnauthenticated)
		}
		return chat.Identity{}, oops.Code("USER_LOOKUP_FAILED").
			With("user_id", session.UserID).
			Wrap(err)
	}

	if err := a.sessions.UpdateLastSeen(ctx, session.ID, now); err != nil {
		a.logger.Debug("failed to update session last seen", "session_id", session.ID, "error", err)
	}

	return chat.Identity{
		ID:          user.ID,
		DisplayName: user.DisplayName(),
		Email:       user.Email,
		AvatarRef:   user.ImageKey,
		IsAdmin:     user.IsAdmin || a.admins.Match(user.Email),
	}, nil
}
