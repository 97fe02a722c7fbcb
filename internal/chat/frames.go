// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/oops"
)

// FrameType is the "type" discriminator of a server frame.
type FrameType string

const (
	FrameHistory     FrameType = "history"
	FrameOnlineUsers FrameType = "online_users"
	FrameTypingUsers FrameType = "typing_users"
	FrameUserJoined  FrameType = "user_joined"
	FrameUserLeft    FrameType = "user_left"
	FrameMessage     FrameType = "message"
)

// ServerFrame is an event sent from a hub to its sessions.
type ServerFrame interface {
	Type() FrameType
}

// HistoryFrame carries the history snapshot sent on admission.
type HistoryFrame struct {
	Messages []Message
}

// OnlineUsersFrame carries the roster display names.
type OnlineUsersFrame struct {
	Users []string
}

// TypingUsersFrame carries the names of identities currently typing.
type TypingUsersFrame struct {
	Users []string
}

// PresenceFrame announces a session joining or leaving.
type PresenceFrame struct {
	Left      bool
	UserID    string
	UserName  string
	Timestamp time.Time
}

// MessageFrame carries one new message.
type MessageFrame struct {
	Message Message
}

func (HistoryFrame) Type() FrameType     { return FrameHistory }
func (OnlineUsersFrame) Type() FrameType { return FrameOnlineUsers }
func (TypingUsersFrame) Type() FrameType { return FrameTypingUsers }
func (MessageFrame) Type() FrameType     { return FrameMessage }

func (f PresenceFrame) Type() FrameType {
	if f.Left {
		return FrameUserLeft
	}
	return FrameUserJoined
}

// AvatarResolver turns an avatar storage key into a public URL. It returns
// "" when no URL can be built.
type AvatarResolver func(key string) string

// PublicBucketResolver resolves keys against a public bucket base URL such
// as https://pub-<account>.r2.dev.
func PublicBucketResolver(baseURL string) AvatarResolver {
	base := strings.TrimRight(baseURL, "/")
	return func(key string) string {
		if base == "" || key == "" {
			return ""
		}
		return base + "/" + strings.TrimLeft(key, "/")
	}
}

// WireMessage is the JSON form of a message.
type WireMessage struct {
	ID         string     `json:"id"`
	AuthorType AuthorType `json:"authorType"`
	UserID     string     `json:"userId"`
	UserName   string     `json:"userName"`
	Message    string     `json:"message"`
	Timestamp  int64      `json:"timestamp"`
	AvatarKey  string     `json:"userProfilePictureKey,omitempty"`
	AvatarURL  string     `json:"userProfilePicture,omitempty"`
}

type wireHistory struct {
	Type     FrameType     `json:"type"`
	Messages []WireMessage `json:"messages"`
}

type wireUsers struct {
	Type  FrameType `json:"type"`
	Users []string  `json:"users"`
}

type wirePresence struct {
	Type      FrameType `json:"type"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp int64     `json:"timestamp"`
}

type wireMessageFrame struct {
	Type    FrameType   `json:"type"`
	Message WireMessage `json:"message"`
}

// Encoder renders server frames as JSON text frames.
type Encoder struct {
	resolve AvatarResolver
}

// NewEncoder creates an encoder. A nil resolver leaves avatar URLs empty.
func NewEncoder(resolve AvatarResolver) *Encoder {
	return &Encoder{resolve: resolve}
}

// WireMessage converts m to its JSON form.
func (e *Encoder) WireMessage(m Message) WireMessage {
	w := WireMessage{
		ID:         m.ID.String(),
		AuthorType: m.AuthorType,
		UserID:     m.AuthorID,
		UserName:   m.AuthorName,
		Message:    m.Body,
		Timestamp:  m.CreatedAtMillis(),
		AvatarKey:  m.AvatarRef,
	}
	if e != nil && e.resolve != nil && m.AvatarRef != "" {
		w.AvatarURL = e.resolve(m.AvatarRef)
	}
	return w
}

// WireMessages converts msgs to their JSON form. Never returns nil.
func (e *Encoder) WireMessages(msgs []Message) []WireMessage {
	out := make([]WireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, e.WireMessage(m))
	}
	return out
}

// Encode renders frame as JSON.
func (e *Encoder) Encode(frame ServerFrame) ([]byte, error) {
	var v any
	switch f := frame.(type) {
	case HistoryFrame:
		v = wireHistory{Type: f.Type(), Messages: e.WireMessages(f.Messages)}
	case OnlineUsersFrame:
		v = wireUsers{Type: f.Type(), Users: nonNil(f.Users)}
	case TypingUsersFrame:
		v = wireUsers{Type: f.Type(), Users: nonNil(f.Users)}
	case PresenceFrame:
		v = wirePresence{
			Type:      f.Type(),
			UserID:    f.UserID,
			UserName:  f.UserName,
			Timestamp: f.Timestamp.UnixMilli(),
		}
	case MessageFrame:
		v = wireMessageFrame{Type: f.Type(), Message: e.WireMessage(f.Message)}
	default:
		return nil, oops.Code("CHAT_UNKNOWN_FRAME").Errorf("unknown frame %T", frame)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, oops.Code("CHAT_ENCODE_FAILED").With("frame", frame.Type()).Wrap(err)
	}
	return data, nil
}

func nonNil(users []string) []string {
	if users == nil {
		return []string{}
	}
	return users
}
