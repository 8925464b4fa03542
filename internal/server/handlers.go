package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sentra-ai/sna/internal/engine"
	"github.com/sentra-ai/sna/internal/model"
	"github.com/sentra-ai/sna/internal/policy"
	"github.com/sentra-ai/sna/internal/storage"
	"github.com/sentra-ai/sna/internal/validator"
)

// Evaluator is the decision engine surface the handlers call.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest) (model.EvaluationResult, error)
	RecordExecution(ctx context.Context, req model.RecordExecutionRequest) (model.ExecutionEntry, error)
}

// AuditReader queries the audit log.
type AuditReader interface {
	QueryAudit(ctx context.Context, f model.AuditFilter, page, pageSize int) (model.AuditPage, error)
	CountByVerdictSince(ctx context.Context, since time.Time) (map[model.Verdict]int, error)
}

// ExecutionReader queries the execution log.
type ExecutionReader interface {
	ListExecutions(ctx context.Context, toolName string, limit int) ([]model.ExecutionEntry, error)
}

// EscalationService is the approval surface over the escalation registry.
type EscalationService interface {
	Get(ctx context.Context, id uuid.UUID) (model.EscalationRecord, error)
	List(ctx context.Context, state model.EscalationState, limit int) ([]model.EscalationRecord, error)
	Approve(ctx context.Context, id uuid.UUID, approver string) (model.EscalationRecord, error)
	Reject(ctx context.Context, id uuid.UUID, approver string) (model.EscalationRecord, error)
}

// ScoreSource reads the current earned autonomy score.
type ScoreSource interface {
	Current(ctx context.Context) (float64, error)
}

// Pinger reports storage connectivity for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Engine      Evaluator
	Audits      AuditReader
	Executions  ExecutionReader
	Escalations EscalationService
	Score       ScoreSource
	Validators  *validator.Composite
	Policies    *policy.Store
	PolicyPath  string
	DB          Pinger
	Logger      *slog.Logger
	Version     string
	StartTime   time.Time
}

// HandleEvaluate processes POST /v1/evaluate.
func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	result, err := h.Engine.Evaluate(r.Context(), req)
	if err != nil {
		if errors.Is(err, engine.ErrAuditWriteFailed) {
			// Fail-closed: the verdict is already BLOCK, but the caller must
			// see this as a service failure, not a decision.
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeStorageError, "audit write failed")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleQueryAudit processes GET /v1/audit.
func (h *Handlers) HandleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := model.AuditFilter{
		Verdict:  model.Verdict(q.Get("verdict")),
		RiskTier: model.RiskTier(q.Get("risk_tier")),
		ToolName: q.Get("tool_name"),
	}
	if filter.Verdict != "" && !filter.Verdict.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid verdict filter")
		return
	}
	if s := q.Get("since"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "since must be RFC 3339")
			return
		}
		filter.Since = ts
	}
	if s := q.Get("until"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "until must be RFC 3339")
			return
		}
		filter.Until = ts
	}

	page := intParam(q.Get("page"), 1)
	pageSize := intParam(q.Get("page_size"), model.DefaultPageSize)

	result, err := h.Audits.QueryAudit(r.Context(), filter, page, pageSize)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "audit query failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeStorageError, "audit query failed")
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleComplianceReport processes GET /v1/compliance/report.
func (h *Handlers) HandleComplianceReport(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r.URL.Query().Get("hours"), 24)
	if hours < 1 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "hours must be positive")
		return
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := h.Audits.CountByVerdictSince(r.Context(), since)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "compliance report failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeStorageError, "compliance report failed")
		return
	}
	score, err := h.Score.Current(r.Context())
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "EAS read failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeStorageError, "EAS read failed")
		return
	}

	report := model.ComplianceReport{
		TimeWindowHours: hours,
		PermitCount:     counts[model.VerdictPermit],
		EscalateCount:   counts[model.VerdictEscalate],
		BlockCount:      counts[model.VerdictBlock],
		CurrentEAS:      score,
	}
	report.TotalEvaluations = report.PermitCount + report.EscalateCount + report.BlockCount
	writeJSON(w, r, http.StatusOK, report)
}

// HandleRecordExecution processes POST /v1/executions.
func (h *Handlers) HandleRecordExecution(w http.ResponseWriter, r *http.Request) {
	var req model.RecordExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	entry, err := h.Engine.RecordExecution(r.Context(), req)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "duplicate execution record")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	writeJSON(w, r, http.StatusCreated, entry)
}

// HandleListExecutions processes GET /v1/executions.
func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	toolName := r.URL.Query().Get("tool_name")
	limit := intParam(r.URL.Query().Get("limit"), model.DefaultPageSize)

	entries, err := h.Executions.ListExecutions(r.Context(), toolName, limit)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "execution list failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeStorageError, "execution list failed")
		return
	}
	if entries == nil {
		entries = []model.ExecutionEntry{}
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// HandleListEscalations processes GET /v1/escalations.
func (h *Handlers) HandleListEscalations(w http.ResponseWriter, r *http.Request) {
	state := model.EscalationState(r.URL.Query().Get("state"))
	limit := intParam(r.URL.Query().Get("limit"), model.DefaultPageSize)

	recs, err := h.Escalations.List(r.Context(), state, limit)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "escalation list failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeStorageError, "escalation list failed")
		return
	}
	if recs == nil {
		recs = []model.EscalationRecord{}
	}
	writeJSON(w, r, http.StatusOK, recs)
}

// HandleGetEscalation processes GET /v1/escalations/{id}.
func (h *Handlers) HandleGetEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid escalation id")
		return
	}

	rec, err := h.Escalations.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "escalation not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeStorageError, "escalation lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleApproveEscalation processes POST /v1/escalations/{id}/approve.
func (h *Handlers) HandleApproveEscalation(w http.ResponseWriter, r *http.Request) {
	h.decideEscalation(w, r, h.Escalations.Approve)
}

// HandleRejectEscalation processes POST /v1/escalations/{id}/reject.
func (h *Handlers) HandleRejectEscalation(w http.ResponseWriter, r *http.Request) {
	h.decideEscalation(w, r, h.Escalations.Reject)
}

func (h *Handlers) decideEscalation(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, id uuid.UUID, approver string) (model.EscalationRecord, error),
) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid escalation id")
		return
	}

	var req model.EscalationDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.Approver == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "approver is required")
		return
	}

	rec, err := decide(r.Context(), id, req.Approver)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "escalation not found")
		case errors.Is(err, storage.ErrConflict):
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "escalation is not pending")
		default:
			h.Logger.ErrorContext(r.Context(), "escalation decision failed", "escalation_id", id, "error", err)
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeStorageError, "escalation decision failed")
		}
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// validateResponse is the body for POST /v1/validate.
type validateResponse struct {
	OverallStatus model.ValidationStatus   `json:"overall_status"`
	Results       []model.ValidationResult `json:"results"`
}

// HandleValidate processes POST /v1/validate.
func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req model.ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.ToolName == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "tool_name is required")
		return
	}

	results, overall := h.Validators.Run(r.Context(), req)
	if results == nil {
		results = []model.ValidationResult{}
	}
	writeJSON(w, r, http.StatusOK, validateResponse{OverallStatus: overall, Results: results})
}

// policyReloadResponse is the body for POST /v1/policy/reload.
type policyReloadResponse struct {
	Version  string   `json:"version"`
	Tools    int      `json:"tools"`
	Warnings []string `json:"warnings,omitempty"`
}

// HandlePolicyReload processes POST /v1/policy/reload. The prior policy
// stays in effect when the new document fails to load or does not advance
// the version.
func (h *Handlers) HandlePolicyReload(w http.ResponseWriter, r *http.Request) {
	doc, warnings, err := policy.LoadFile(h.PolicyPath)
	if err != nil {
		h.Logger.WarnContext(r.Context(), "policy reload rejected", "path", h.PolicyPath, "error", err)
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := h.Policies.Swap(doc); err != nil {
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
		return
	}

	h.Logger.InfoContext(r.Context(), "policy reloaded", "version", doc.Version, "tools", len(doc.Tools))
	writeJSON(w, r, http.StatusOK, policyReloadResponse{
		Version:  doc.Version,
		Tools:    len(doc.Tools),
		Warnings: warnings,
	})
}

// HandleHealth processes GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:        "ok",
		Version:       h.Version,
		Postgres:      "ok",
		PolicyVersion: h.Policies.Current().Version,
		Uptime:        int64(time.Since(h.StartTime).Seconds()),
	}
	status := http.StatusOK
	if err := h.DB.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Postgres = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
