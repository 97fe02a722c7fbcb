// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

// ClientEvent is an event received from a session. The set is closed:
// PostEvent and TypingEvent are the only implementations.
type ClientEvent interface {
	clientEvent()
}

// PostEvent asks the hub to post a message.
type PostEvent struct {
	Text string
}

// TypingEvent reports that the sender started or stopped typing.
type TypingEvent struct {
	Typing bool
}

func (PostEvent) clientEvent()   {}
func (TypingEvent) clientEvent() {}
