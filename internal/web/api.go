// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/holomush/todochat/internal/chat"
	"github.com/holomush/todochat/pkg/errutil"
)

// Recent messages endpoint limits.
const (
	DefaultMessagesLimit = 50
	MaxMessagesLimit     = 100
)

type sendRequest struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleSend broadcasts a system message to the room.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if !s.triggerAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	hub, err := s.cfg.Rooms.Lookup(chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown room")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	kind, err := chat.ParseNotificationKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown notification kind")
		return
	}

	if err := hub.Notify(r.Context(), kind, req.Message); err != nil {
		status := statusFor(err)
		if status == http.StatusBadRequest {
			writeError(w, status, "Message is required")
			return
		}
		errutil.LogError(s.logger, "system broadcast failed", err, "room", hub.Room().String())
		writeError(w, status, http.StatusText(status))
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{Success: true, Message: "Message broadcast"})
}

func (s *Server) triggerAuthorized(r *http.Request) bool {
	if s.cfg.TriggerToken == "" {
		return true
	}
	token, ok := bearerToken(r)
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.TriggerToken)) == 1
}

// handleMessages returns the most recent stored messages, oldest first.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	hub, err := s.cfg.Rooms.Lookup(chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown room")
		return
	}

	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	if _, err := hub.Authorize(r.Context(), s.credentials(r)); err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			errutil.LogError(s.logger, "message read authorization failed", err, "room", hub.Room().String())
		}
		writeError(w, status, http.StatusText(status))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
	defer cancel()
	msgs, err := s.cfg.Store.RecentTail(ctx, hub.Room(), limit)
	if err != nil {
		errutil.LogError(s.logger, "failed to read recent messages", err, "room", hub.Room().String())
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, s.cfg.Encoder.WireMessages(msgs))
}

func parseLimit(raw string) (int, bool) {
	if raw == "" {
		return DefaultMessagesLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > MaxMessagesLimit {
		return 0, false
	}
	return n, true
}
