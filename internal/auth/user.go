// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// User is an account of the todo application.
type User struct {
	ID       string
	Name     string
	Email    string
	ImageKey string // avatar storage key
	IsAdmin  bool
}

// DisplayName returns the name shown in chat.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return u.ID
}

// UserRepository reads users.
type UserRepository interface {
	// GetByID retrieves a user. Returns an error wrapping ErrNotFound if
	// there is none.
	GetByID(ctx context.Context, id string) (*User, error)
}

// AdminMatcher grants admin rights by email pattern, e.g. "*@example.com".
// Matching is case-insensitive. A nil matcher matches nothing.
type AdminMatcher struct {
	patterns []glob.Glob
}

// NewAdminMatcher compiles patterns.
func NewAdminMatcher(patterns []string) (*AdminMatcher, error) {
	m := &AdminMatcher{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code("AUTH_INVALID_ADMIN_PATTERN").With("pattern", p).Wrap(err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Match reports whether email matches any pattern.
func (m *AdminMatcher) Match(email string) bool {
	if m == nil || email == "" {
		return false
	}
	email = strings.ToLower(email)
	for _, g := range m.patterns {
		if g.Match(email) {
			return true
		}
	}
	return false
}
