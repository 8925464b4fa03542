// Package notify defines the notification contract for escalation and
// verdict events, and the startup-time safety validation for webhook URLs.
// Concrete webhook backends live outside the core.
package notify

import (
	"context"
	"log/slog"
)

// Event is a notification payload handed to a Notifier.
type Event struct {
	Kind    string         // "escalation_created", "escalation_resolved", "validation_failed"
	Subject string         // escalation ID, external ID, etc.
	Message string
	Fields  map[string]any
}

// Notifier delivers events to one channel. Implementations must be safe for
// concurrent use and must not block evaluation: delivery failures are the
// backend's problem, never the engine's.
type Notifier interface {
	Channel() string
	Send(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the structured log. It is the default backend
// and the test double for the notification contract.
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel returns the channel label used in notification metrics.
func (n *LogNotifier) Channel() string { return "log" }

// Send logs the event.
func (n *LogNotifier) Send(ctx context.Context, ev Event) error {
	n.Logger.InfoContext(ctx, "notification",
		"kind", ev.Kind,
		"subject", ev.Subject,
		"message", ev.Message,
	)
	return nil
}
