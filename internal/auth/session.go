// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/samber/oops"
)

// ErrNotFound is wrapped by repository errors for a missing session or user.
var ErrNotFound = errors.New("not found")

// SessionTokenBytes is the size of a generated session token before hex encoding.
const SessionTokenBytes = 32

// WebSession is a login session issued to a browser.
type WebSession struct {
	ID         string
	UserID     string
	TokenHash  string
	UserAgent  string
	IPAddress  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// IsExpiredAt reports whether the session is expired at t.
func (s *WebSession) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// GenerateSessionToken creates a random token and its hash. The token goes
// to the client; only the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	token = hex.EncodeToString(buf)
	return token, HashSessionToken(token), nil
}

// HashSessionToken returns the hex SHA-256 of token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// WebSessionRepository reads web sessions.
type WebSessionRepository interface {
	// GetByTokenHash retrieves a session by its token hash. Returns an
	// error wrapping ErrNotFound if there is none.
	GetByTokenHash(ctx context.Context, tokenHash string) (*WebSession, error)

	// UpdateLastSeen records activity on a session.
	UpdateLastSeen(ctx context.Context, id string, lastSeen time.Time) error
}
