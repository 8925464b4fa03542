// Package engine implements the policy decision point: it evaluates
// proposed tool calls against the active policy and returns PERMIT,
// ESCALATE, or BLOCK, with every decision recorded in the audit log
// before the caller sees the verdict.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentra-ai/sna/internal/ctxutil"
	"github.com/sentra-ai/sna/internal/eas"
	"github.com/sentra-ai/sna/internal/model"
	"github.com/sentra-ai/sna/internal/policy"
	"github.com/sentra-ai/sna/internal/sanitize"
	"github.com/sentra-ai/sna/internal/telemetry"
)

// ErrAuditWriteFailed is returned when the audit append fails. The verdict
// in the accompanying result is downgraded to BLOCK: an action that cannot
// be recorded is never permitted.
var ErrAuditWriteFailed = errors.New("engine: audit write failed")

// AuditStore persists audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *model.AuditEntry) error
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	InsertExecution(ctx context.Context, e *model.ExecutionEntry) error
}

// Escalator registers verdicts that need human review.
type Escalator interface {
	Create(ctx context.Context, reason string, reqContext map[string]any) (model.EscalationRecord, error)
}

// Engine evaluates tool calls. Safe for concurrent use; each evaluation
// reads one consistent policy snapshot.
type Engine struct {
	policies    *policy.Store
	audits      AuditStore
	executions  ExecutionStore
	score       *eas.Calculator
	escalations Escalator
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time

	// tsMu serializes timestamp generation so audit timestamps are
	// strictly monotonic within the process even when the wall clock
	// repeats a reading.
	tsMu   sync.Mutex
	lastTS time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(
	policies *policy.Store,
	audits AuditStore,
	executions ExecutionStore,
	score *eas.Calculator,
	escalations Escalator,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		policies:    policies,
		audits:      audits,
		executions:  executions,
		score:       score,
		escalations: escalations,
		metrics:     metrics,
		logger:      logger,
		tracer:      otel.Tracer("sna/engine"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the decision pipeline for one proposed tool call. The
// result is returned only after its audit entry is durably written; on a
// failed write the verdict is downgraded to BLOCK and ErrAuditWriteFailed
// is returned alongside the result.
func (e *Engine) Evaluate(ctx context.Context, req model.EvaluationRequest) (model.EvaluationResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Evaluate",
		trace.WithAttributes(
			attribute.String("tool_name", req.ToolName),
			attribute.Int("device_count", len(req.DeviceTargets)),
		))
	defer span.End()
	start := e.now()

	if err := req.Validate(); err != nil {
		return model.EvaluationResult{}, fmt.Errorf("engine: invalid request: %w", err)
	}

	doc := e.policies.Current()
	result := e.decide(ctx, doc, req)

	// Escalation creation happens before the audit entry that references it.
	if result.Verdict == model.VerdictEscalate {
		rec, err := e.escalations.Create(ctx, result.Reason, escalationContext(req))
		if err != nil {
			e.logger.ErrorContext(ctx, "escalation creation failed",
				"tool_name", req.ToolName, "error", err)
			result.Verdict = model.VerdictBlock
			result.Reason = "escalation registration failed"
			result.EscalationID = nil
		} else {
			id := rec.ID
			result.EscalationID = &id
		}
	}

	entry := e.auditEntry(ctx, result)
	if err := e.audits.AppendAudit(ctx, &entry); err != nil {
		e.logger.ErrorContext(ctx, "audit append failed",
			"tool_name", req.ToolName, "external_id", entry.ExternalID, "error", err)
		result.Verdict = model.VerdictBlock
		result.Reason = "audit write failed"
		e.finish(result, start)
		return result, fmt.Errorf("%w: %w", ErrAuditWriteFailed, err)
	}
	e.score.Invalidate()

	e.logger.InfoContext(ctx, "evaluation complete",
		"tool_name", result.ToolName,
		"verdict", result.Verdict,
		"risk_tier", result.RiskTier,
		"reason", result.Reason,
		"confidence_score", result.ConfidenceScore,
		"confidence_threshold", result.ConfidenceThreshold,
		"eas", result.EAS,
		"external_id", entry.ExternalID)
	span.SetAttributes(
		attribute.String("verdict", string(result.Verdict)),
		attribute.String("risk_tier", string(result.RiskTier)),
	)
	e.finish(result, start)
	return result, nil
}

// decide runs the short-circuiting decision steps against one policy
// snapshot. It has no side effects.
func (e *Engine) decide(ctx context.Context, doc *policy.Document, req model.EvaluationRequest) model.EvaluationResult {
	result := model.EvaluationResult{
		ToolName:        req.ToolName,
		ConfidenceScore: req.ConfidenceScore,
		DeviceCount:     len(req.DeviceTargets),
		PolicyVersion:   doc.Version,
	}

	tool := doc.Lookup(req.ToolName)
	if tool == nil {
		result.Verdict = doc.DefaultVerdict
		result.RiskTier = model.TierUnknown
		result.Reason = "unknown tool"
		return result
	}

	result.RiskTier = tool.Tier
	result.RequiresAudit = tool.RequiresAudit
	result.RequiresSeniorApproval = tool.RequiresSeniorApproval

	// Duplicate targets count individually against the limit.
	if len(req.DeviceTargets) > tool.MaxTargets {
		result.Verdict = model.VerdictBlock
		result.Reason = fmt.Sprintf("scope exceeded (%d > %d)", len(req.DeviceTargets), tool.MaxTargets)
		return result
	}

	if tool.Params != nil {
		if err := tool.Params.Check(req.Parameters); err != nil {
			result.Verdict = model.VerdictBlock
			result.Reason = err.Error()
			return result
		}
	}

	score, err := e.score.Current(ctx)
	if err != nil {
		// No readable history earns no trust; proceed with EAS 0.0 so the
		// threshold adjusts in the strict direction.
		e.logger.WarnContext(ctx, "EAS unavailable, using 0.0", "error", err)
		score = 0.0
	}
	result.EAS = score

	threshold := clamp(tool.ConfidenceThreshold-doc.Curve.Delta(score), 0.0, 1.0)
	result.ConfidenceThreshold = threshold

	writeTier := tool.Tier == model.TierLowWrite ||
		tool.Tier == model.TierHighWrite ||
		tool.Tier == model.TierDestruct

	switch {
	case writeTier && req.ConfidenceScore < threshold:
		result.Verdict = model.VerdictEscalate
		result.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", req.ConfidenceScore, threshold)
	case tool.Tier == model.TierDestruct && req.ConfidenceScore < 1.0:
		result.Verdict = model.VerdictEscalate
		result.Reason = fmt.Sprintf("destructive operation at confidence %.2f requires approval", req.ConfidenceScore)
	case tool.RequiresSeniorApproval:
		result.Verdict = model.VerdictEscalate
		result.Reason = "senior approval required"
	default:
		result.Verdict = model.VerdictPermit
		result.Reason = fmt.Sprintf("confidence %.2f meets threshold %.2f", req.ConfidenceScore, threshold)
	}
	return result
}

// RecordExecution sanitizes and persists one execution record reported by
// the caller's executor after a PERMIT.
func (e *Engine) RecordExecution(ctx context.Context, req model.RecordExecutionRequest) (model.ExecutionEntry, error) {
	ctx, span := e.tracer.Start(ctx, "engine.RecordExecution",
		trace.WithAttributes(
			attribute.String("tool_name", req.ToolName),
			attribute.String("device_target", req.DeviceTarget),
		))
	defer span.End()

	if req.ToolName == "" {
		return model.ExecutionEntry{}, fmt.Errorf("engine: invalid request: tool_name is required")
	}
	if req.DeviceTarget == "" {
		return model.ExecutionEntry{}, fmt.Errorf("engine: invalid request: device_target is required")
	}

	entry := model.ExecutionEntry{
		ExternalID:      uuid.NewString(),
		Timestamp:       e.nextTimestamp(),
		ToolName:        req.ToolName,
		DeviceTarget:    req.DeviceTarget,
		CommandSent:     sanitize.Sanitize(req.CommandSent),
		Output:          sanitize.Sanitize(req.Output),
		Success:         req.Success,
		DurationSeconds: req.DurationSeconds,
		Error:           req.Error,
	}
	if err := e.executions.InsertExecution(ctx, &entry); err != nil {
		return model.ExecutionEntry{}, fmt.Errorf("engine: record execution: %w", err)
	}

	if e.metrics != nil {
		e.metrics.ExecutionTotal.WithLabelValues(fmt.Sprintf("%t", req.Success)).Inc()
		e.metrics.ExecutionLatency.Observe(req.DurationSeconds)
	}
	e.logger.InfoContext(ctx, "execution recorded",
		"tool_name", entry.ToolName,
		"device_target", entry.DeviceTarget,
		"success", entry.Success,
		"external_id", entry.ExternalID)
	return entry, nil
}

func (e *Engine) auditEntry(ctx context.Context, r model.EvaluationResult) model.AuditEntry {
	return model.AuditEntry{
		ExternalID:             uuid.NewString(),
		Timestamp:              e.nextTimestamp(),
		Verdict:                r.Verdict,
		RiskTier:               r.RiskTier,
		ToolName:               r.ToolName,
		Reason:                 r.Reason,
		ConfidenceScore:        r.ConfidenceScore,
		ConfidenceThreshold:    r.ConfidenceThreshold,
		DeviceCount:            r.DeviceCount,
		RequiresAudit:          r.RequiresAudit,
		RequiresSeniorApproval: r.RequiresSeniorApproval,
		EscalationID:           r.EscalationID,
		PolicyVersion:          r.PolicyVersion,
		EAS:                    r.EAS,
		CorrelationID:          ctxutil.CorrelationID(ctx),
	}
}

// nextTimestamp returns a UTC timestamp strictly greater than any
// previously issued by this process.
func (e *Engine) nextTimestamp() time.Time {
	e.tsMu.Lock()
	defer e.tsMu.Unlock()
	ts := e.now().UTC()
	if !ts.After(e.lastTS) {
		ts = e.lastTS.Add(time.Microsecond)
	}
	e.lastTS = ts
	return ts
}

func (e *Engine) finish(r model.EvaluationResult, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.EvaluationTotal.WithLabelValues(string(r.Verdict), string(r.RiskTier)).Inc()
	e.metrics.EvaluationLatency.Observe(e.now().Sub(start).Seconds())
}

func escalationContext(req model.EvaluationRequest) map[string]any {
	ctx := map[string]any{
		"tool_name":        req.ToolName,
		"device_targets":   req.DeviceTargets,
		"confidence_score": req.ConfidenceScore,
	}
	for k, v := range req.Context {
		ctx[k] = v
	}
	return ctx
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
