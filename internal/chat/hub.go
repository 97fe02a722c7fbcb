// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/todochat/pkg/errutil"
)

var tracer = otel.Tracer("todochat/chat")

// Hub defaults.
const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultQueueSize    = 256
)

// Limiter throttles posts per key.
type Limiter interface {
	// Allow reports whether key may act now, and if not how long to wait.
	Allow(key string) (bool, time.Duration)
	// Forget drops the state kept for key.
	Forget(key string)
}

// HubConfig configures a Hub.
type HubConfig struct {
	Room       RoomKind
	Store      MessageStore
	Authorizer Authorizer
	Encoder    *Encoder
	Limiter    Limiter // optional
	Logger     *slog.Logger

	// StoreTimeout bounds each history load and each append.
	StoreTimeout time.Duration
	// QueueSize is the capacity of the command queue and the persist queue.
	QueueSize int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Hub is the actor that owns one room. All room state is touched only by
// the goroutine running Run; every public method submits a command to it.
type Hub struct {
	room         RoomKind
	store        MessageStore
	authz        Authorizer
	encoder      *Encoder
	limiter      Limiter
	logger       *slog.Logger
	storeTimeout time.Duration
	now          func() time.Time

	// Owned by the Run goroutine.
	state   *RoomState
	pending []eviction

	commands chan command
	persistQ chan Message
	started  atomic.Bool
	stopping chan struct{}
	done     chan struct{}
}

type command func(ctx context.Context)

type eviction struct {
	session *Session
	reason  string
}

// NewHub creates a hub for cfg.Room. Call Run to start it.
func NewHub(cfg HubConfig) (*Hub, error) {
	if _, err := ParseRoomKind(string(cfg.Room)); err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		return nil, oops.Code("CHAT_INVALID_CONFIG").Errorf("message store is required")
	}
	if cfg.Authorizer == nil {
		return nil, oops.Code("CHAT_INVALID_CONFIG").Errorf("authorizer is required")
	}
	if cfg.Encoder == nil {
		cfg.Encoder = NewEncoder(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Hub{
		room:         cfg.Room,
		store:        cfg.Store,
		authz:        cfg.Authorizer,
		encoder:      cfg.Encoder,
		limiter:      cfg.Limiter,
		logger:       cfg.Logger.With("room", string(cfg.Room)),
		storeTimeout: cfg.StoreTimeout,
		now:          cfg.Now,
		state:        NewRoomState(),
		commands:     make(chan command, cfg.QueueSize),
		persistQ:     make(chan Message, cfg.QueueSize),
		stopping:     make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Room returns the room this hub owns.
func (h *Hub) Room() RoomKind {
	return h.room
}

// Done is closed once Run has returned and pending writes are flushed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run processes commands until ctx is cancelled. On exit every session is
// closed and queued messages are persisted before Done is closed.
func (h *Hub) Run(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return oops.Code("CHAT_HUB_RUNNING").With("room", h.room).Errorf("hub already running")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.persistLoop()
	}()

	h.logger.Info("chat hub started")
	defer func() {
		close(h.stopping)
		h.closeAll()
		close(h.persistQ)
		wg.Wait()
		close(h.done)
		h.logger.Info("chat hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-h.commands:
			cmd(ctx)
		}
	}
}

// submit queues cmd without waiting for it to run.
func (h *Hub) submit(ctx context.Context, cmd command) error {
	select {
	case <-h.stopping:
		return errHubStopped(h.room)
	default:
	}
	select {
	case h.commands <- cmd:
		return nil
	case <-h.stopping:
		return errHubStopped(h.room)
	case <-ctx.Done():
		return oops.Code(CodeCancelled).With("room", h.room).Wrap(ctx.Err())
	}
}

// call queues cmd and waits for it to finish.
func (h *Hub) call(ctx context.Context, cmd command) error {
	finished := make(chan struct{})
	if err := h.submit(ctx, func(runCtx context.Context) {
		defer close(finished)
		cmd(runCtx)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-h.stopping:
		return errHubStopped(h.room)
	case <-ctx.Done():
		return oops.Code(CodeCancelled).With("room", h.room).Wrap(ctx.Err())
	}
}

// Authorize resolves creds to an identity allowed in this room. The public
// room turns unauthenticated requests into guests.
func (h *Hub) Authorize(ctx context.Context, creds Credentials) (Identity, error) {
	return authorize(ctx, h.authz, h.room, creds)
}

// Admit authorizes creds and admits a session bound to transport.
func (h *Hub) Admit(ctx context.Context, creds Credentials, transport Transport) (session *Session, err error) {
	ctx, span := tracer.Start(ctx, "chat.admit",
		trace.WithAttributes(attribute.String("chat.room", h.room.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	identity, err := h.Authorize(ctx, creds)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("chat.guest", identity.IsGuest),
		attribute.Bool("chat.admin", identity.IsAdmin),
	)
	return h.Join(ctx, identity, transport)
}

// Join admits a session for an already authorized identity. The new session
// receives the history snapshot, roster, and typing set before Join returns.
func (h *Hub) Join(ctx context.Context, identity Identity, transport Transport) (*Session, error) {
	session := newSession(h.room, identity, transport, h.now())
	err := h.call(ctx, func(runCtx context.Context) {
		if ctx.Err() != nil {
			session.close()
			return
		}
		h.admit(runCtx, session)
	})
	if err != nil {
		session.close()
		return nil, err
	}
	if !session.IsLive() {
		return nil, oops.Code("CHAT_ADMIT_FAILED").
			With("room", h.room).
			With("session_id", session.ID().String()).
			Errorf("session closed during admission")
	}
	return session, nil
}

// Post submits a message from session. Invalid posts are dropped silently;
// the error only reports that the hub did not accept the command.
func (h *Hub) Post(ctx context.Context, session *Session, text string) error {
	return h.submit(ctx, func(runCtx context.Context) {
		h.post(runCtx, session, text)
	})
}

// SetTyping sets or clears the typing flag of session's identity.
func (h *Hub) SetTyping(ctx context.Context, session *Session, typing bool) error {
	return h.submit(ctx, func(context.Context) {
		h.setTyping(session, typing)
	})
}

// Dispatch applies a decoded client event from session.
func (h *Hub) Dispatch(ctx context.Context, session *Session, event ClientEvent) error {
	switch ev := event.(type) {
	case PostEvent:
		return h.Post(ctx, session, ev.Text)
	case TypingEvent:
		return h.SetTyping(ctx, session, ev.Typing)
	default:
		return oops.Code("CHAT_UNKNOWN_EVENT").With("room", h.room).Errorf("unknown client event %T", event)
	}
}

// Disconnect removes session from the room. Disconnecting a session that is
// already gone is a no-op.
func (h *Hub) Disconnect(ctx context.Context, session *Session) error {
	err := h.submit(ctx, func(context.Context) {
		h.evict(session, ReasonDisconnect)
		h.drainEvictions()
	})
	if err != nil {
		session.close()
	}
	return err
}

// BroadcastSystemMessage posts text as the system identity. It returns once
// the message has been broadcast; persistence happens afterwards.
func (h *Hub) BroadcastSystemMessage(ctx context.Context, text string) error {
	body, ok := NormalizeBody(text)
	if !ok {
		return oops.Code(CodeEmptyMessage).With("room", h.room).Errorf("message is empty")
	}
	return h.call(ctx, func(runCtx context.Context) {
		h.publish(runCtx, newMessage(SystemIdentity, AuthorSystem, body, h.now()))
		h.drainEvictions()
	})
}

// RoomSnapshot is a point-in-time copy of a room's state.
type RoomSnapshot struct {
	Room        RoomKind
	Initialized bool
	Sessions    int
	Online      []string
	Typing      []string
	History     []Message
}

// Snapshot returns a copy of the room state. Because commands run in order,
// it reflects every command submitted before it.
func (h *Hub) Snapshot(ctx context.Context) (RoomSnapshot, error) {
	var snap RoomSnapshot
	err := h.call(ctx, func(context.Context) {
		snap = RoomSnapshot{
			Room:        h.room,
			Initialized: h.state.Initialized(),
			Sessions:    h.state.Len(),
			Online:      h.state.OnlineDisplayNames(),
			Typing:      h.state.TypingDisplayNames(),
			History:     h.state.SnapshotTail(HistoryCacheSize),
		}
	})
	return snap, err
}

func (h *Hub) admit(ctx context.Context, session *Session) {
	h.ensureHistory(ctx)
	h.state.AddSession(session)

	snapshot := []ServerFrame{
		HistoryFrame{Messages: h.state.SnapshotTail(HistorySnapshotSize)},
		OnlineUsersFrame{Users: h.state.OnlineDisplayNames()},
		TypingUsersFrame{Users: h.state.TypingDisplayNames()},
	}
	for _, frame := range snapshot {
		if !h.sendTo(session, frame) {
			// Nobody has been told about this session yet.
			h.state.RemoveSession(session.ID())
			session.close()
			recordEviction(h.room, ReasonSendFailed)
			h.logger.Debug("session failed during admission", "session_id", session.ID().String())
			return
		}
	}

	Sessions.WithLabelValues(string(h.room)).Inc()
	h.logger.Debug("session admitted",
		"session_id", session.ID().String(),
		"user_id", session.Identity().ID,
		"guest", session.Identity().IsGuest,
	)

	h.broadcast(PresenceFrame{
		UserID:    session.Identity().ID,
		UserName:  session.Identity().DisplayName,
		Timestamp: h.now(),
	}, session.ID())
	h.drainEvictions()
}

func (h *Hub) post(ctx context.Context, session *Session, text string) {
	identity := session.Identity()
	switch {
	case session.Room() != h.room || !h.state.HasSession(session.ID()) || !session.IsLive():
		recordDropped(h.room, ReasonNotInRoom)
		return
	case !identity.CanPost():
		recordDropped(h.room, ReasonGuestPost)
		return
	}

	body, ok := NormalizeBody(text)
	if !ok {
		recordDropped(h.room, ReasonEmptyMessage)
		return
	}

	if h.limiter != nil {
		if allowed, retryAfter := h.limiter.Allow(session.ID().String()); !allowed {
			recordDropped(h.room, ReasonRateLimited)
			h.logger.Debug("post rate limited",
				"session_id", session.ID().String(),
				"retry_after", retryAfter,
			)
			return
		}
	}

	if h.state.SetTypingFlag(identity.ID, false) {
		h.broadcastTyping()
	}
	h.publish(ctx, newMessage(identity, AuthorUser, body, h.now()))
	h.drainEvictions()
}

func (h *Hub) setTyping(session *Session, typing bool) {
	switch {
	case session.Room() != h.room || !h.state.HasSession(session.ID()) || !session.IsLive():
		recordDropped(h.room, ReasonNotInRoom)
		return
	case !session.Identity().CanType():
		recordDropped(h.room, ReasonGuestTyping)
		return
	}
	if h.state.SetTypingFlag(session.Identity().ID, typing) {
		h.broadcastTyping()
		h.drainEvictions()
	}
}

// publish caches, broadcasts, then queues msg for persistence.
func (h *Hub) publish(ctx context.Context, msg Message) {
	h.ensureHistory(ctx)
	h.state.AppendHistory(msg)
	h.broadcast(MessageFrame{Message: msg}, ulid.ULID{})
	MessagesTotal.WithLabelValues(string(h.room), string(msg.AuthorType)).Inc()

	select {
	case h.persistQ <- msg:
	default:
		recordPersist(h.room, 0, errPersistQueueFull)
		recordDropped(h.room, ReasonQueueFull)
		errutil.LogError(h.logger, "failed to queue chat message for persistence", oops.
			Code("STORE_APPEND_FAILED").
			With("message_id", msg.ID.String()).
			Wrap(errPersistQueueFull))
	}
}

// ensureHistory loads the history cache once. A failed load leaves the
// cache empty; the room still counts as initialized.
func (h *Hub) ensureHistory(ctx context.Context) {
	if h.state.Initialized() {
		return
	}
	loadCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	msgs, err := h.store.RecentTail(loadCtx, h.room, HistoryCacheSize)
	if err != nil {
		errutil.LogError(h.logger, "failed to load chat history", err)
		msgs = nil
	}
	h.state.Initialize(msgs)
	h.logger.Debug("chat history loaded", "messages", len(msgs))
}

func (h *Hub) broadcastTyping() {
	if names, changed := h.state.typingChanged(); changed {
		h.broadcast(TypingUsersFrame{Users: names}, ulid.ULID{})
	}
}

// broadcast delivers frame to every live session except the one with id
// except. Sessions that fail delivery are queued for eviction.
func (h *Hub) broadcast(frame ServerFrame, except ulid.ULID) {
	data, err := h.encoder.Encode(frame)
	if err != nil {
		errutil.LogError(h.logger, "failed to encode frame", err)
		return
	}
	for _, s := range h.state.sessions {
		if s.ID() == except {
			continue
		}
		if s.deliver(data) == Dropped {
			h.pending = append(h.pending, eviction{session: s, reason: ReasonSendFailed})
		}
	}
}

// sendTo delivers frame to a single session.
func (h *Hub) sendTo(session *Session, frame ServerFrame) bool {
	data, err := h.encoder.Encode(frame)
	if err != nil {
		errutil.LogError(h.logger, "failed to encode frame", err)
		return false
	}
	return session.deliver(data) == Delivered
}

// drainEvictions processes queued evictions, including any caused by the
// broadcasts of earlier evictions.
func (h *Hub) drainEvictions() {
	for len(h.pending) > 0 {
		next := h.pending[0]
		h.pending = h.pending[1:]
		h.evict(next.session, next.reason)
	}
	h.pending = nil
}

func (h *Hub) evict(session *Session, reason string) {
	if _, ok := h.state.RemoveSession(session.ID()); !ok {
		session.close()
		return
	}
	session.close()
	if h.limiter != nil {
		h.limiter.Forget(session.ID().String())
	}
	Sessions.WithLabelValues(string(h.room)).Dec()
	recordEviction(h.room, reason)

	identity := session.Identity()
	h.logger.Debug("session removed",
		"session_id", session.ID().String(),
		"user_id", identity.ID,
		"reason", reason,
	)

	// Another tab of the same identity keeps its typing flag.
	if !h.state.HasIdentity(identity.ID) {
		h.state.SetTypingFlag(identity.ID, false)
	}
	h.broadcastTyping()
	h.broadcast(PresenceFrame{
		Left:      true,
		UserID:    identity.ID,
		UserName:  identity.DisplayName,
		Timestamp: h.now(),
	}, ulid.ULID{})
}

// closeAll closes every session without broadcasting. Used on shutdown.
func (h *Hub) closeAll() {
	for _, s := range h.state.Sessions() {
		h.state.RemoveSession(s.ID())
		s.close()
		Sessions.WithLabelValues(string(h.room)).Dec()
		recordEviction(h.room, ReasonShutdown)
	}
	h.pending = nil
}
