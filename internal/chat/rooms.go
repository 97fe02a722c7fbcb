// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// Rooms holds the hub of every room served by the process.
type Rooms struct {
	hubs map[RoomKind]*Hub
}

// NewRooms builds a registry from hubs. Two hubs for the same room are an error.
func NewRooms(hubs ...*Hub) (*Rooms, error) {
	r := &Rooms{hubs: make(map[RoomKind]*Hub, len(hubs))}
	for _, h := range hubs {
		if _, dup := r.hubs[h.Room()]; dup {
			return nil, oops.Code("CHAT_DUPLICATE_ROOM").With("room", h.Room()).Errorf("duplicate hub for room %s", h.Room())
		}
		r.hubs[h.Room()] = h
	}
	return r, nil
}

// Get returns the hub for room.
func (r *Rooms) Get(room RoomKind) (*Hub, bool) {
	h, ok := r.hubs[room]
	return h, ok
}

// Lookup parses name and returns its hub.
func (r *Rooms) Lookup(name string) (*Hub, error) {
	room, err := ParseRoomKind(name)
	if err != nil {
		return nil, err
	}
	h, ok := r.hubs[room]
	if !ok {
		return nil, oops.Code(CodeUnknownRoom).With("room", name).Errorf("room %q is not served", name)
	}
	return h, nil
}

// Run runs every hub until ctx is cancelled and all hubs have stopped.
func (r *Rooms) Run(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, h := range r.hubs {
		wg.Add(1)
		go func(h *Hub) {
			defer wg.Done()
			if err := h.Run(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()
	return firstErr
}
