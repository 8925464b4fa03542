// Package model defines the domain types shared by the policy engine,
// storage layer, and HTTP API: verdicts, risk tiers, audit records,
// escalations, and the request/response envelopes.
package model

// Verdict is the outcome of a policy evaluation.
type Verdict string

const (
	VerdictPermit   Verdict = "PERMIT"
	VerdictEscalate Verdict = "ESCALATE"
	VerdictBlock    Verdict = "BLOCK"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictPermit, VerdictEscalate, VerdictBlock:
		return true
	}
	return false
}

// RiskTier is the coarse classification of a tool.
type RiskTier string

const (
	TierRead      RiskTier = "READ"
	TierLowWrite  RiskTier = "LOW_WRITE"
	TierHighWrite RiskTier = "HIGH_WRITE"
	TierDestruct  RiskTier = "DESTRUCTIVE"

	// TierUnknown is reported for tools absent from the policy catalog.
	// It never appears in a policy document.
	TierUnknown RiskTier = "UNKNOWN"
)

// Valid reports whether t is a tier that may appear in a policy document.
func (t RiskTier) Valid() bool {
	switch t {
	case TierRead, TierLowWrite, TierHighWrite, TierDestruct:
		return true
	}
	return false
}

// EscalationState is the lifecycle state of an escalation record.
type EscalationState string

const (
	EscalationPending  EscalationState = "PENDING"
	EscalationApproved EscalationState = "APPROVED"
	EscalationRejected EscalationState = "REJECTED"
	EscalationExpired  EscalationState = "EXPIRED"
)

// Terminal reports whether s admits no further transitions.
func (s EscalationState) Terminal() bool {
	return s == EscalationApproved || s == EscalationRejected || s == EscalationExpired
}

// ValidationStatus is the outcome of a post-change validator.
type ValidationStatus string

const (
	ValidationPass  ValidationStatus = "PASS"
	ValidationFail  ValidationStatus = "FAIL"
	ValidationSkip  ValidationStatus = "SKIP"
	ValidationError ValidationStatus = "ERROR"
)

// severity orders validation statuses for composite aggregation.
var severity = map[ValidationStatus]int{
	ValidationPass:  0,
	ValidationSkip:  1,
	ValidationFail:  2,
	ValidationError: 3,
}

// Worse returns the more severe of two validation statuses
// (ERROR > FAIL > SKIP > PASS).
func (s ValidationStatus) Worse(other ValidationStatus) ValidationStatus {
	if severity[other] > severity[s] {
		return other
	}
	return s
}
