// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/todochat/pkg/errutil"
)

var errPersistQueueFull = errors.New("persist queue full")

// persistLoop appends queued messages in order until persistQ is closed.
// Failures are logged; broadcast messages are never retracted.
func (h *Hub) persistLoop() {
	for msg := range h.persistQ {
		ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
		start := time.Now()
		err := h.store.Append(ctx, h.room, msg)
		cancel()

		recordPersist(h.room, time.Since(start), err)
		if err != nil {
			errutil.LogError(h.logger, "failed to persist chat message", oops.
				Code("STORE_APPEND_FAILED").
				With("room", h.room).
				With("message_id", msg.ID.String()).
				With("author_type", msg.AuthorType).
				Wrap(err))
		}
	}
}
