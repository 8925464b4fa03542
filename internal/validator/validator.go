// Package validator verifies post-execution device state: each validator
// compares opaque before/after snapshots captured by the caller and reports
// PASS, FAIL, SKIP, or ERROR.
package validator

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentra-ai/sna/internal/model"
)

// Validator checks one aspect of an executed action.
type Validator interface {
	// Name identifies the validator in results and logs.
	Name() string
	// Validate inspects the before/after snapshots. It never returns a Go
	// error; internal failures surface as StatusError results.
	Validate(ctx context.Context, req model.ValidateRequest) model.ValidationResult
}

// Composite runs a fixed sequence of validators and aggregates their
// results. The overall status is the worst individual status, with
// severity ERROR > FAIL > SKIP > PASS.
type Composite struct {
	validators []Validator
	logger     *slog.Logger
	counter    *prometheus.CounterVec
	now        func() time.Time
}

// CompositeOption configures a Composite.
type CompositeOption func(*Composite)

// WithCounter counts every individual result by status.
func WithCounter(c *prometheus.CounterVec) CompositeOption {
	return func(comp *Composite) { comp.counter = c }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) CompositeOption {
	return func(comp *Composite) { comp.now = now }
}

// NewComposite creates a Composite over the given validators, run in order.
func NewComposite(logger *slog.Logger, validators []Validator, opts ...CompositeOption) *Composite {
	c := &Composite{
		validators: validators,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes every validator against the request and returns the
// individual results plus the aggregated worst status. An empty validator
// set aggregates to SKIP.
func (c *Composite) Run(ctx context.Context, req model.ValidateRequest) ([]model.ValidationResult, model.ValidationStatus) {
	if len(c.validators) == 0 {
		return nil, model.ValidationSkip
	}

	results := make([]model.ValidationResult, 0, len(c.validators))
	overall := model.ValidationPass

	for _, v := range c.validators {
		start := c.now()
		res := v.Validate(ctx, req)
		if res.TestcaseName == "" {
			res.TestcaseName = v.Name()
		}
		if res.Timestamp.IsZero() {
			res.Timestamp = start.UTC()
		}
		if res.DurationSeconds == 0 {
			res.DurationSeconds = c.now().Sub(start).Seconds()
		}
		results = append(results, res)

		overall = overall.Worse(res.Status)
		if c.counter != nil {
			c.counter.WithLabelValues(string(res.Status)).Inc()
		}
		if res.Status == model.ValidationFail || res.Status == model.ValidationError {
			c.logger.Warn("validation not clean",
				"validator", res.TestcaseName,
				"status", res.Status,
				"tool_name", req.ToolName,
				"device_target", req.DeviceTarget,
				"message", res.Message)
		}
	}

	return results, overall
}
