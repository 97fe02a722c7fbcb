// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package chattest provides test doubles for the chat package.
package chattest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/todochat/internal/chat"
)

// ErrBroken is returned by a failing Recorder.
var ErrBroken = errors.New("transport broken")

// Frame is a decoded server frame.
type Frame map[string]any

// Type returns the frame's type discriminator.
func (f Frame) Type() string {
	t, _ := f["type"].(string)
	return t
}

// Users returns the users list of an online_users or typing_users frame.
func (f Frame) Users() []string {
	raw, _ := f["users"].([]any)
	users := make([]string, 0, len(raw))
	for _, u := range raw {
		s, _ := u.(string)
		users = append(users, s)
	}
	return users
}

// Messages returns the messages of a history frame.
func (f Frame) Messages() []map[string]any {
	raw, _ := f["messages"].([]any)
	msgs := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		obj, _ := m.(map[string]any)
		msgs = append(msgs, obj)
	}
	return msgs
}

// Message returns the message of a message frame.
func (f Frame) Message() map[string]any {
	m, _ := f["message"].(map[string]any)
	return m
}

// Recorder is a chat.Transport that records every frame it accepts.
type Recorder struct {
	mu      sync.Mutex
	frames  [][]byte
	failing bool
	closed  bool
}

// NewRecorder creates a working recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Enqueue records frame, or fails if the recorder is failing or closed.
func (r *Recorder) Enqueue(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing || r.closed {
		return ErrBroken
	}
	r.frames = append(r.frames, frame)
	return nil
}

// Close marks the recorder closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// SetFailing makes every later Enqueue fail.
func (r *Recorder) SetFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Frames decodes every recorded frame.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, 0, len(r.frames))
	for _, raw := range r.frames {
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			f = Frame{"type": "<invalid>", "raw": string(raw)}
		}
		out = append(out, f)
	}
	return out
}

// FramesOfType returns the recorded frames with the given type.
func (r *Recorder) FramesOfType(t chat.FrameType) []Frame {
	var out []Frame
	for _, f := range r.Frames() {
		if f.Type() == string(t) {
			out = append(out, f)
		}
	}
	return out
}

// Reset discards recorded frames.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

// Identities maps tokens to identities. Unknown or empty tokens are
// unauthenticated.
type Identities map[string]chat.Identity

// Resolve implements chat.Authorizer.
func (ids Identities) Resolve(_ context.Context, creds chat.Credentials) (chat.Identity, error) {
	identity, ok := ids[creds.Token]
	if !ok || creds.Token == "" {
		return chat.Identity{}, chat.ErrUnauthenticated
	}
	return identity, nil
}

// MockAuthorizer is a testify mock of chat.Authorizer.
type MockAuthorizer struct {
	mock.Mock
}

// Resolve implements chat.Authorizer.
func (m *MockAuthorizer) Resolve(ctx context.Context, creds chat.Credentials) (chat.Identity, error) {
	args := m.Called(ctx, creds)
	identity, _ := args.Get(0).(chat.Identity)
	return identity, args.Error(1)
}

// MockMessageStore is a testify mock of chat.MessageStore.
type MockMessageStore struct {
	mock.Mock
}

// Append implements chat.MessageStore.
func (m *MockMessageStore) Append(ctx context.Context, room chat.RoomKind, msg chat.Message) error {
	return m.Called(ctx, room, msg).Error(0)
}

// RecentTail implements chat.MessageStore.
func (m *MockMessageStore) RecentTail(ctx context.Context, room chat.RoomKind, limit int) ([]chat.Message, error) {
	args := m.Called(ctx, room, limit)
	msgs, _ := args.Get(0).([]chat.Message)
	return msgs, args.Error(1)
}
