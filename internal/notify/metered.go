package notify

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metered wraps a Notifier and counts deliveries by channel.
type Metered struct {
	next    Notifier
	counter *prometheus.CounterVec
}

// NewMetered wraps next so every attempted delivery increments the counter.
func NewMetered(next Notifier, counter *prometheus.CounterVec) *Metered {
	return &Metered{next: next, counter: counter}
}

// Channel returns the wrapped notifier's channel label.
func (m *Metered) Channel() string { return m.next.Channel() }

// Send delivers the event and counts the attempt.
func (m *Metered) Send(ctx context.Context, ev Event) error {
	m.counter.WithLabelValues(m.next.Channel()).Inc()
	return m.next.Send(ctx, ev)
}
