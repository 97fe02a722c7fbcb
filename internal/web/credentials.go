// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"
	"strings"

	"github.com/holomush/todochat/internal/chat"
)

// credentials extracts the session token from, in order, the Authorization
// bearer header, the session cookie, and the token query parameter.
func (s *Server) credentials(r *http.Request) chat.Credentials {
	return chat.Credentials{
		Token:      sessionToken(r, s.cfg.CookieName),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
}

func sessionToken(r *http.Request, cookieName string) string {
	if token, ok := bearerToken(r); ok {
		return token
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
