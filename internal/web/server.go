// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web serves the chat rooms over HTTP and WebSocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/samber/oops"

	"github.com/holomush/todochat/internal/chat"
	"github.com/holomush/todochat/internal/observability"
)

// Websocket defaults.
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPongTimeout  = 60 * time.Second
	DefaultPingInterval = (DefaultPongTimeout * 9) / 10
	// DefaultMaxMessageBytes fits a 1000-character body of 4-byte runes,
	// fully JSON escaped, with room for the envelope. Longer bodies are
	// truncated by the hub, not rejected by the socket.
	DefaultMaxMessageBytes = 64 * 1024
	DefaultSendBuffer      = 64
	DefaultCookieName      = "todochat_session"

	maxRequestBody = 64 * 1024
)

// WebsocketConfig tunes websocket connections.
type WebsocketConfig struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	// SendBuffer is the number of frames queued per connection before the
	// connection counts as too slow and is evicted.
	SendBuffer int
}

// Config configures a Server.
type Config struct {
	Rooms   *chat.Rooms
	Store   chat.MessageStore
	Encoder *chat.Encoder
	Metrics *observability.Metrics // optional
	Logger  *slog.Logger

	// CookieName is the session cookie read for credentials.
	CookieName string
	// TriggerToken protects the send endpoint. Empty leaves it open.
	TriggerToken string
	// StoreTimeout bounds reads on the messages endpoint.
	StoreTimeout time.Duration
	// AllowedOrigins lists browser origins allowed to connect. Empty
	// allows same-origin requests only.
	AllowedOrigins []string
	Websocket      WebsocketConfig
}

// Server is the chat HTTP server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	handler  http.Handler

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool

	// conns tracks connection pumps so Wait can block until all exit.
	conns sync.WaitGroup
}

// NewServer validates cfg and builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Rooms == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("rooms are required")
	}
	if cfg.Store == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("message store is required")
	}
	if cfg.Encoder == nil {
		cfg.Encoder = chat.NewEncoder(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = chat.DefaultStoreTimeout
	}
	ws := &cfg.Websocket
	if ws.WriteTimeout <= 0 {
		ws.WriteTimeout = DefaultWriteTimeout
	}
	if ws.PongTimeout <= 0 {
		ws.PongTimeout = DefaultPongTimeout
	}
	if ws.PingInterval <= 0 || ws.PingInterval >= ws.PongTimeout {
		ws.PingInterval = (ws.PongTimeout * 9) / 10
	}
	if ws.MaxMessageBytes <= 0 {
		ws.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if ws.SendBuffer <= 0 {
		ws.SendBuffer = DefaultSendBuffer
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		//nolint:errcheck // client may disconnect
		w.Write([]byte("OK"))
	})
	r.Get("/ws/{room}", s.handleWebsocket)

	r.Route("/api/{room}", func(r chi.Router) {
		if len(s.cfg.AllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.cfg.AllowedOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		r.Use(chimw.RequestSize(maxRequestBody))
		r.Get("/messages", s.handleMessages)
		r.Post("/send", s.handleSend)
	})

	return r
}

// Start listens on addr and serves in the background. The returned channel
// receives a serve error, and is closed when the server stops.
func (s *Server) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_RUNNING").Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop stops accepting requests. Open websocket connections are closed by
// their hubs; use Wait to block until they are gone.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// Wait blocks until every websocket connection has finished or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return oops.Code("WEB_WAIT_CANCELLED").Wrap(ctx.Err())
	}
}

// Addr returns the listen address, or "" if not started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
