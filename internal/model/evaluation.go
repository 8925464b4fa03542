package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field limits for evaluation requests. These bound what a caller can push
// into audit rows and reason strings.
const (
	MaxToolNameLen = 200
	MaxHostnameLen = 255
	MaxTargets     = 1000
)

// EvaluationRequest is a proposed tool call awaiting a verdict.
// Ephemeral; never persisted as-is.
type EvaluationRequest struct {
	ToolName        string         `json:"tool_name"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	DeviceTargets   []string       `json:"device_targets"`
	ConfidenceScore float64        `json:"confidence_score"`
	Context         map[string]any `json:"context,omitempty"`
}

// Validate checks structural bounds on the request. Violations are
// surfaced to the caller as invalid-input failures, not verdicts.
func (r EvaluationRequest) Validate() error {
	if r.ToolName == "" {
		return fmt.Errorf("tool_name is required")
	}
	if len(r.ToolName) > MaxToolNameLen {
		return fmt.Errorf("tool_name exceeds maximum length of %d characters", MaxToolNameLen)
	}
	if len(r.DeviceTargets) == 0 {
		return fmt.Errorf("device_targets must not be empty")
	}
	if len(r.DeviceTargets) > MaxTargets {
		return fmt.Errorf("device_targets exceeds maximum of %d entries", MaxTargets)
	}
	for i, t := range r.DeviceTargets {
		if t == "" {
			return fmt.Errorf("device_targets[%d] is empty", i)
		}
		if len(t) > MaxHostnameLen {
			return fmt.Errorf("device_targets[%d] exceeds maximum length of %d characters", i, MaxHostnameLen)
		}
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("confidence_score must be in [0, 1], got %g", r.ConfidenceScore)
	}
	return nil
}

// EvaluationResult is the verdict for one evaluation. Immutable once produced.
type EvaluationResult struct {
	Verdict                Verdict    `json:"verdict"`
	RiskTier               RiskTier   `json:"risk_tier"`
	ToolName               string     `json:"tool_name"`
	Reason                 string     `json:"reason"`
	ConfidenceScore        float64    `json:"confidence_score"`
	ConfidenceThreshold    float64    `json:"confidence_threshold"`
	DeviceCount            int        `json:"device_count"`
	RequiresAudit          bool       `json:"requires_audit"`
	RequiresSeniorApproval bool       `json:"requires_senior_approval"`
	EscalationID           *uuid.UUID `json:"escalation_id,omitempty"`
	PolicyVersion          string     `json:"policy_version"`
	EAS                    float64    `json:"eas"`
}

// AuditEntry is the append-only record of one evaluation.
type AuditEntry struct {
	// ID is the storage insertion sequence; it breaks timestamp ties
	// in descending queries. Zero until the entry is persisted.
	ID int64 `json:"-"`

	ExternalID             string     `json:"external_id"`
	Timestamp              time.Time  `json:"timestamp"`
	Verdict                Verdict    `json:"verdict"`
	RiskTier               RiskTier   `json:"risk_tier"`
	ToolName               string     `json:"tool_name"`
	Reason                 string     `json:"reason"`
	ConfidenceScore        float64    `json:"confidence_score"`
	ConfidenceThreshold    float64    `json:"confidence_threshold"`
	DeviceCount            int        `json:"device_count"`
	RequiresAudit          bool       `json:"requires_audit"`
	RequiresSeniorApproval bool       `json:"requires_senior_approval"`
	EscalationID           *uuid.UUID `json:"escalation_id,omitempty"`
	PolicyVersion          string     `json:"policy_version"`
	EAS                    float64    `json:"eas"`
	CorrelationID          string     `json:"correlation_id,omitempty"`
}

// ExecutionEntry records one executed command on one device.
// Written by the caller's executor after a PERMIT; one row per target.
type ExecutionEntry struct {
	ID              int64     `json:"-"`
	ExternalID      string    `json:"external_id"`
	Timestamp       time.Time `json:"timestamp"`
	ToolName        string    `json:"tool_name"`
	DeviceTarget    string    `json:"device_target"`
	CommandSent     string    `json:"command_sent"`
	Output          string    `json:"output"`
	Success         bool      `json:"success"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           *string   `json:"error,omitempty"`
}

// EscalationRecord tracks a verdict awaiting human approval.
type EscalationRecord struct {
	ID        uuid.UUID       `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	State     EscalationState `json:"state"`
	Approver  *string         `json:"approver,omitempty"`
	Reason    string          `json:"reason"`
	Context   map[string]any  `json:"context,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ValidationResult is the outcome of one validator for one action.
type ValidationResult struct {
	Status          ValidationStatus `json:"status"`
	TestcaseName    string           `json:"testcase_name"`
	Message         string           `json:"message"`
	Details         map[string]any   `json:"details,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
	DurationSeconds float64          `json:"duration_seconds"`
}
