// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/holomush/todochat/internal/chat"
	"github.com/holomush/todochat/internal/protocol"
	"github.com/holomush/todochat/pkg/errutil"
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// wsConn is the chat.Transport of one websocket client. Frames queue in
// send until the write pump picks them up; a full queue rejects the frame
// so the hub evicts the slow client.
type wsConn struct {
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(buffer int) *wsConn {
	return &wsConn{
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Enqueue implements chat.Transport.
func (c *wsConn) Enqueue(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close implements chat.Transport.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "room")
	if !websocket.IsWebSocketUpgrade(r) {
		writeError(w, http.StatusBadRequest, "Expected Upgrade: websocket")
		return
	}

	hub, err := s.cfg.Rooms.Lookup(roomName)
	if err != nil {
		s.countConnection(roomName, "unknown_room")
		writeError(w, http.StatusNotFound, "Unknown room")
		return
	}

	conn := newWSConn(s.cfg.Websocket.SendBuffer)
	session, err := hub.Admit(r.Context(), s.credentials(r), conn)
	if err != nil {
		status := statusFor(err)
		s.countConnection(roomName, strconv.Itoa(status))
		if status >= http.StatusInternalServerError {
			errutil.LogError(s.logger, "websocket admission failed", err, "room", roomName)
		}
		writeError(w, status, http.StatusText(status))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		s.countConnection(roomName, "upgrade_failed")
		s.logger.Debug("websocket upgrade failed", "room", roomName, "error", err)
		//nolint:contextcheck // the request context may already be done
		_ = hub.Disconnect(context.Background(), session)
		return
	}
	s.countConnection(roomName, "admitted")

	logger := s.logger.With(
		"room", roomName,
		"session_id", session.ID().String(),
		"user_id", session.Identity().ID,
	)
	logger.Debug("websocket connected", "guest", session.Identity().IsGuest)

	s.conns.Add(2)
	go func() {
		defer s.conns.Done()
		s.writePump(ws, conn, hub, session, logger)
	}()
	go func() {
		defer s.conns.Done()
		s.readPump(ws, hub, session, logger)
	}()
}

// writePump writes queued frames and keep-alive pings until the hub closes
// the transport or a write fails.
func (s *Server) writePump(ws *websocket.Conn, conn *wsConn, hub *chat.Hub, session *chat.Session, logger *slog.Logger) {
	cfg := s.cfg.Websocket
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case frame := <-conn.send:
			if err := s.write(ws, websocket.TextMessage, frame); err != nil {
				logger.Debug("websocket write failed", "error", err)
				_ = hub.Disconnect(context.Background(), session)
				return
			}
		case <-ticker.C:
			if err := s.write(ws, websocket.PingMessage, nil); err != nil {
				logger.Debug("websocket ping failed", "error", err)
				_ = hub.Disconnect(context.Background(), session)
				return
			}
		case <-conn.done:
			s.flush(ws, conn)
			_ = s.write(ws, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes frames still queued when the transport was closed, so the
// last presence updates reach a client that is being shut down.
func (s *Server) flush(ws *websocket.Conn, conn *wsConn) {
	for {
		select {
		case frame := <-conn.send:
			if err := s.write(ws, websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) write(ws *websocket.Conn, messageType int, data []byte) error {
	if err := ws.SetWriteDeadline(time.Now().Add(s.cfg.Websocket.WriteTimeout)); err != nil {
		return err //nolint:wrapcheck // logged at debug by the caller
	}
	return ws.WriteMessage(messageType, data) //nolint:wrapcheck // logged at debug by the caller
}

// readPump decodes client frames and dispatches them to the hub. Invalid
// frames are dropped. It disconnects the session when the socket closes.
func (s *Server) readPump(ws *websocket.Conn, hub *chat.Hub, session *chat.Session, logger *slog.Logger) {
	cfg := s.cfg.Websocket
	defer func() {
		_ = hub.Disconnect(context.Background(), session)
	}()

	ws.SetReadLimit(cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug("websocket closed unexpectedly", "error", err)
			}
			return
		}

		event, err := protocol.Decode(data)
		if err != nil {
			logger.Debug("dropping invalid client frame", "error", err)
			continue
		}
		if err := hub.Dispatch(context.Background(), session, event); err != nil {
			logger.Debug("hub rejected client event", "error", err)
			return
		}
	}
}

func (s *Server) countConnection(room, result string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ConnectionsTotal.WithLabelValues(room, result).Inc()
	}
}
