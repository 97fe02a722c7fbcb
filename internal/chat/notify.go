// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"context"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NotificationKind selects the prefix of a system notification.
type NotificationKind string

const (
	NotifyPlain   NotificationKind = ""
	NotifySystem  NotificationKind = "system"
	NotifyError   NotificationKind = "error"
	NotifySuccess NotificationKind = "success"
)

var notificationPrefixes = map[NotificationKind]string{
	NotifyPlain:   "",
	NotifySystem:  "🔔 System Notification: ",
	NotifyError:   "❌ Error: ",
	NotifySuccess: "✅ Success: ",
}

// ParseNotificationKind validates a notification kind name.
func ParseNotificationKind(name string) (NotificationKind, error) {
	kind := NotificationKind(name)
	if _, ok := notificationPrefixes[kind]; !ok {
		return "", oops.Code(CodeUnknownNotification).With("kind", name).Errorf("unknown notification kind %q", name)
	}
	return kind, nil
}

// FormatNotification prefixes text according to kind.
func FormatNotification(kind NotificationKind, text string) string {
	return notificationPrefixes[kind] + text
}

// Notify broadcasts a prefixed system message.
func (h *Hub) Notify(ctx context.Context, kind NotificationKind, text string) error {
	ctx, span := tracer.Start(ctx, "chat.notify", trace.WithAttributes(
		attribute.String("chat.room", h.room.String()),
		attribute.String("chat.notification_kind", string(kind)),
	))
	defer span.End()

	if _, ok := NormalizeBody(text); !ok {
		return oops.Code(CodeEmptyMessage).With("room", h.room).Errorf("message is empty")
	}
	return h.BroadcastSystemMessage(ctx, FormatNotification(kind, text))
}
