package model

import "time"

// Audit query pagination bounds. Pages are 1-indexed.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeStorageError  = "STORAGE_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// AuditPage is the response for paginated audit queries.
type AuditPage struct {
	Items    []AuditEntry `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	HasNext  bool         `json:"has_next"`
	HasPrev  bool         `json:"has_prev"`
}

// AuditFilter selects audit entries for queries and counts.
// Zero-value fields are not applied.
type AuditFilter struct {
	Verdict  Verdict
	RiskTier RiskTier
	ToolName string
	Since    time.Time
	Until    time.Time
}

// ComplianceReport summarizes verdict counts over a trailing window.
// Counts are computed server-side from the audit log.
type ComplianceReport struct {
	TimeWindowHours  int     `json:"time_window_hours"`
	TotalEvaluations int     `json:"total_evaluations"`
	PermitCount      int     `json:"permit_count"`
	EscalateCount    int     `json:"escalate_count"`
	BlockCount       int     `json:"block_count"`
	CurrentEAS       float64 `json:"current_eas"`
}

// RecordExecutionRequest is the request body for POST /v1/executions.
type RecordExecutionRequest struct {
	ToolName        string  `json:"tool_name"`
	DeviceTarget    string  `json:"device_target"`
	CommandSent     string  `json:"command_sent"`
	Output          string  `json:"output"`
	Success         bool    `json:"success"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           *string `json:"error,omitempty"`
}

// EscalationDecisionRequest is the request body for approve/reject calls.
type EscalationDecisionRequest struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason,omitempty"`
}

// ValidateRequest is the request body for POST /v1/validate.
// States are opaque snapshots captured by the caller around execution.
type ValidateRequest struct {
	ToolName     string         `json:"tool_name"`
	DeviceTarget string         `json:"device_target"`
	BeforeState  map[string]any `json:"before_state,omitempty"`
	AfterState   map[string]any `json:"after_state,omitempty"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Postgres      string `json:"postgres"`
	PolicyVersion string `json:"policy_version"`
	Uptime        int64  `json:"uptime_seconds"`
}
