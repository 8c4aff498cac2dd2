// Package notify fans catalog events out to whoever is listening: websocket
// subscribers and, when configured, a mailbox.
package notify

import (
	"context"

	"vidshare/internal/models"
)

// Notifier must not block the caller for long; slow sinks deliver in the
// background.
type Notifier interface {
	Notify(ctx context.Context, ev models.Event)
}

// Multi delivers to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev models.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, models.Event) {}
