// Package escalation manages the lifecycle of verdicts awaiting human
// approval: PENDING records that a reviewer approves or rejects, or that
// expire after a TTL.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentra-ai/sna/internal/model"
	"github.com/sentra-ai/sna/internal/notify"
)

// DefaultTTL is how long an escalation stays PENDING before expiry.
const DefaultTTL = 24 * time.Hour

// DefaultSweepInterval is how often the expiry sweep runs.
const DefaultSweepInterval = time.Minute

// Store is the persistence surface the registry needs.
type Store interface {
	CreateEscalation(ctx context.Context, rec *model.EscalationRecord) error
	GetEscalation(ctx context.Context, id uuid.UUID) (model.EscalationRecord, error)
	ListEscalations(ctx context.Context, state model.EscalationState, limit int) ([]model.EscalationRecord, error)
	TransitionEscalation(ctx context.Context, id uuid.UUID, from, to model.EscalationState, approver *string, now time.Time) (model.EscalationRecord, error)
	ExpireEscalations(ctx context.Context, cutoff, now time.Time) (int, error)
	CountPendingEscalations(ctx context.Context) (int, error)
}

// Registry creates and transitions escalation records. All transitions out
// of PENDING are compare-and-set in storage, so concurrent decisions on the
// same escalation resolve to exactly one winner.
type Registry struct {
	store         Store
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
	notifier      notify.Notifier
	pendingGauge  prometheus.Gauge
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL overrides the pending TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithSweepInterval overrides how often RunExpiry sweeps.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithNotifier sends an event when an escalation is created.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithPendingGauge publishes the pending count after every state change.
func WithPendingGauge(g prometheus.Gauge) Option {
	return func(r *Registry) { r.pendingGauge = g }
}

// New creates a Registry.
func New(store Store, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:         store,
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new PENDING escalation and notifies reviewers.
func (r *Registry) Create(ctx context.Context, reason string, reqContext map[string]any) (model.EscalationRecord, error) {
	now := r.now().UTC()
	rec := model.EscalationRecord{
		ID:        uuid.New(),
		CreatedAt: now,
		State:     model.EscalationPending,
		Reason:    reason,
		Context:   reqContext,
		UpdatedAt: now,
	}
	if err := r.store.CreateEscalation(ctx, &rec); err != nil {
		return model.EscalationRecord{}, fmt.Errorf("escalation: create: %w", err)
	}

	r.logger.Info("escalation created", "escalation_id", rec.ID, "reason", reason)
	if r.notifier != nil {
		event := notify.Event{
			Kind:    "escalation_created",
			Subject: rec.ID.String(),
			Message: reason,
			Fields:  map[string]any{"escalation_id": rec.ID.String()},
		}
		if err := r.notifier.Send(ctx, event); err != nil {
			// Notification failure never blocks the escalation itself.
			r.logger.Warn("escalation notification failed",
				"escalation_id", rec.ID, "channel", r.notifier.Channel(), "error", err)
		}
	}

	r.refreshPendingGauge(ctx)
	return rec, nil
}

// Get returns one escalation by ID.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (model.EscalationRecord, error) {
	return r.store.GetEscalation(ctx, id)
}

// List returns escalations newest first, optionally filtered by state.
func (r *Registry) List(ctx context.Context, state model.EscalationState, limit int) ([]model.EscalationRecord, error) {
	return r.store.ListEscalations(ctx, state, limit)
}

// Approve transitions a PENDING escalation to APPROVED, recording the
// approver. A record in any other state returns storage.ErrConflict.
func (r *Registry) Approve(ctx context.Context, id uuid.UUID, approver string) (model.EscalationRecord, error) {
	return r.decide(ctx, id, model.EscalationApproved, approver)
}

// Reject transitions a PENDING escalation to REJECTED, recording the
// approver. A record in any other state returns storage.ErrConflict.
func (r *Registry) Reject(ctx context.Context, id uuid.UUID, approver string) (model.EscalationRecord, error) {
	return r.decide(ctx, id, model.EscalationRejected, approver)
}

func (r *Registry) decide(ctx context.Context, id uuid.UUID, to model.EscalationState, approver string) (model.EscalationRecord, error) {
	rec, err := r.store.TransitionEscalation(ctx, id, model.EscalationPending, to, &approver, r.now().UTC())
	if err != nil {
		return model.EscalationRecord{}, err
	}

	r.logger.Info("escalation decided",
		"escalation_id", id, "state", rec.State, "approver", approver)
	r.refreshPendingGauge(ctx)
	return rec, nil
}

// ExpireOnce sweeps PENDING escalations older than the TTL into EXPIRED.
// Returns the number of records expired.
func (r *Registry) ExpireOnce(ctx context.Context) (int, error) {
	now := r.now().UTC()
	n, err := r.store.ExpireEscalations(ctx, now.Add(-r.ttl), now)
	if err != nil {
		return 0, fmt.Errorf("escalation: expire sweep: %w", err)
	}
	if n > 0 {
		r.logger.Info("escalations expired", "count", n, "ttl", r.ttl)
		r.refreshPendingGauge(ctx)
	}
	return n, nil
}

// RunExpiry sweeps on an interval until the context is canceled.
func (r *Registry) RunExpiry(ctx context.Context) error {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.ExpireOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

func (r *Registry) refreshPendingGauge(ctx context.Context) {
	if r.pendingGauge == nil {
		return
	}
	n, err := r.store.CountPendingEscalations(ctx)
	if err != nil {
		r.logger.Warn("pending escalation count failed", "error", err)
		return
	}
	r.pendingGauge.Set(float64(n))
}
