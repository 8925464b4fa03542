package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-ai/sna/internal/eas"
	"github.com/sentra-ai/sna/internal/model"
	"github.com/sentra-ai/sna/internal/policy"
)

const testPolicy = `
version: "1"
default_verdict: BLOCK
eas_curve:
  - [0.0, 0.0]
tools:
  show_interfaces:
    tier: READ
    confidence_threshold: 0.5
    max_targets: 50
  configure_vlan:
    tier: HIGH_WRITE
    confidence_threshold: 0.8
    max_targets: 5
    requires_audit: true
    parameters:
      required: [vlan_id]
      allowed: [vlan_id, name]
  erase_config:
    tier: DESTRUCTIVE
    confidence_threshold: 0.9
    max_targets: 1
    requires_audit: true
  reload_device:
    tier: HIGH_WRITE
    confidence_threshold: 0.6
    max_targets: 3
    requires_senior_approval: true
`

const boostPolicy = `
version: "1"
default_verdict: BLOCK
eas_curve:
  - [0.0, -0.2]
  - [0.5, 0.0]
tools:
  configure_static_route:
    tier: HIGH_WRITE
    confidence_threshold: 0.7
    max_targets: 10
`

type fakeAudit struct {
	entries []model.AuditEntry
	err     error
}

func (a *fakeAudit) AppendAudit(_ context.Context, e *model.AuditEntry) error {
	if a.err != nil {
		return a.err
	}
	e.ID = int64(len(a.entries) + 1)
	a.entries = append(a.entries, *e)
	return nil
}

type fakeExec struct {
	entries []model.ExecutionEntry
}

func (x *fakeExec) InsertExecution(_ context.Context, e *model.ExecutionEntry) error {
	e.ID = int64(len(x.entries) + 1)
	x.entries = append(x.entries, *e)
	return nil
}

type fakeEscalator struct {
	created []model.EscalationRecord
	err     error
}

func (f *fakeEscalator) Create(_ context.Context, reason string, reqContext map[string]any) (model.EscalationRecord, error) {
	if f.err != nil {
		return model.EscalationRecord{}, f.err
	}
	rec := model.EscalationRecord{
		ID:      uuid.New(),
		State:   model.EscalationPending,
		Reason:  reason,
		Context: reqContext,
	}
	f.created = append(f.created, rec)
	return rec, nil
}

type fakeCounts struct {
	counts map[model.Verdict]int
	calls  int
}

func (s *fakeCounts) CountByVerdictSince(context.Context, time.Time) (map[model.Verdict]int, error) {
	s.calls++
	return s.counts, nil
}

type testHarness struct {
	engine    *Engine
	audit     *fakeAudit
	exec      *fakeExec
	escalator *fakeEscalator
	counts    *fakeCounts
}

func newHarness(t *testing.T, policyYAML string) *testHarness {
	t.Helper()
	doc, _, err := policy.Parse([]byte(policyYAML))
	require.NoError(t, err)

	h := &testHarness{
		audit:     &fakeAudit{},
		exec:      &fakeExec{},
		escalator: &fakeEscalator{},
		counts:    &fakeCounts{counts: map[model.Verdict]int{}},
	}
	logger := slog.New(slog.DiscardHandler)
	h.engine = New(
		policy.NewStore(doc),
		h.audit,
		h.exec,
		eas.New(h.counts),
		h.escalator,
		nil,
		logger,
	)
	return h
}

func request(tool string, confidence float64, targets ...string) model.EvaluationRequest {
	if len(targets) == 0 {
		targets = []string{"sw-01"}
	}
	return model.EvaluationRequest{
		ToolName:        tool,
		DeviceTargets:   targets,
		ConfidenceScore: confidence,
	}
}

func TestEvaluate_ReadToolPermits(t *testing.T) {
	h := newHarness(t, testPolicy)

	res, err := h.engine.Evaluate(context.Background(), request("show_interfaces", 0.99))
	require.NoError(t, err)

	assert.Equal(t, model.VerdictPermit, res.Verdict)
	assert.Equal(t, model.TierRead, res.RiskTier)
	assert.InDelta(t, 0.5, res.ConfidenceThreshold, 1e-9)
	assert.Nil(t, res.EscalationID)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, model.VerdictPermit, h.audit.entries[0].Verdict)
}

func TestEvaluate_UnknownToolBlocks(t *testing.T) {
	h := newHarness(t, testPolicy)

	res, err := h.engine.Evaluate(context.Background(), request("factory_reset", 0.99))
	require.NoError(t, err)

	assert.Equal(t, model.VerdictBlock, res.Verdict)
	assert.Equal(t, "unknown tool", res.Reason)
	assert.Equal(t, model.TierUnknown, res.RiskTier)
	require.Len(t, h.audit.entries, 1, "blocked evaluations are audited too")
}

func TestEvaluate_ScopeExceededBlocks(t *testing.T) {
	h := newHarness(t, testPolicy)

	req := request("configure_vlan", 0.99,
		"sw-01", "sw-02", "sw-03", "sw-04", "sw-05", "sw-06")
	req.Parameters = map[string]any{"vlan_id": "100"}

	res, err := h.engine.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.VerdictBlock, res.Verdict)
	assert.Contains(t, res.Reason, "scope exceeded (6 > 5)")
	assert.Empty(t, h.escalator.created)
}

func TestEvaluate_DuplicateTargetsCountIndividually(t *testing.T) {
	h := newHarness(t, testPolicy)

	req := request("configure_vlan", 0.99,
		"sw-01", "sw-01", "sw-01", "sw-01", "sw-01", "sw-01")
	req.Parameters = map[string]any{"vlan_id": "100"}

	res, err := h.engine.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictBlock, res.Verdict)
	assert.Contains(t, res.Reason, "scope exceeded")
}

func TestEvaluate_ParameterViolationBlocks(t *testing.T) {
	h := newHarness(t, testPolicy)

	req := request("configure_vlan", 0.99)
	req.Parameters = map[string]any{"vlan_id": "100", "shutdown": true}

	res, err := h.engine.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.VerdictBlock, res.Verdict)
	assert.Contains(t, res.Reason, "shutdown")
}

func TestEvaluate_DestructiveEscalatesBelowPerfectConfidence(t *testing.T) {
	h := newHarness(t, testPolicy)
	ctx := context.Background()

	res, err := h.engine.Evaluate(ctx, request("erase_config", 0.95))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictEscalate, res.Verdict)
	require.NotNil(t, res.EscalationID)

	res, err = h.engine.Evaluate(ctx, request("erase_config", 1.0))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictPermit, res.Verdict)
	assert.Nil(t, res.EscalationID)
}

func TestEvaluate_EmptyHistoryRaisesThreshold(t *testing.T) {
	h := newHarness(t, boostPolicy)

	res, err := h.engine.Evaluate(context.Background(), request("configure_static_route", 0.85))
	require.NoError(t, err)

	assert.Equal(t, model.VerdictEscalate, res.Verdict)
	assert.InDelta(t, 0.9, res.ConfidenceThreshold, 1e-9)
	assert.Zero(t, res.EAS)
}

func TestEvaluate_HighEASLowersThreshold(t *testing.T) {
	h := newHarness(t, boostPolicy)
	h.counts.counts = map[model.Verdict]int{model.VerdictPermit: 10}

	res, err := h.engine.Evaluate(context.Background(), request("configure_static_route", 0.85))
	require.NoError(t, err)

	// EAS 1.0 sits past the last breakpoint; delta clamps to 0.0.
	assert.Equal(t, model.VerdictPermit, res.Verdict)
	assert.InDelta(t, 0.7, res.ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 1.0, res.EAS, 1e-9)
}

func TestEvaluate_SeniorApprovalEscalatesAtFullConfidence(t *testing.T) {
	h := newHarness(t, testPolicy)

	res, err := h.engine.Evaluate(context.Background(), request("reload_device", 1.0))
	require.NoError(t, err)

	assert.Equal(t, model.VerdictEscalate, res.Verdict)
	assert.Equal(t, "senior approval required", res.Reason)
	require.NotNil(t, res.EscalationID)
}

func TestEvaluate_EscalationCreatedBeforeAudit(t *testing.T) {
	h := newHarness(t, testPolicy)

	req := request("configure_vlan", 0.5)
	req.Parameters = map[string]any{"vlan_id": "100"}

	res, err := h.engine.Evaluate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, model.VerdictEscalate, res.Verdict)

	require.Len(t, h.escalator.created, 1)
	require.Len(t, h.audit.entries, 1)
	require.NotNil(t, h.audit.entries[0].EscalationID)
	assert.Equal(t, h.escalator.created[0].ID, *h.audit.entries[0].EscalationID,
		"audit entry must reference the escalation created before it")
}

func TestEvaluate_AuditFailureDowngradesToBlock(t *testing.T) {
	h := newHarness(t, testPolicy)
	h.audit.err = errors.New("connection refused")

	res, err := h.engine.Evaluate(context.Background(), request("show_interfaces", 0.99))
	require.ErrorIs(t, err, ErrAuditWriteFailed)

	assert.Equal(t, model.VerdictBlock, res.Verdict)
	assert.Equal(t, "audit write failed", res.Reason)
}

func TestEvaluate_EscalatorFailureDowngradesToBlock(t *testing.T) {
	h := newHarness(t, testPolicy)
	h.escalator.err = errors.New("connection refused")

	res, err := h.engine.Evaluate(context.Background(), request("erase_config", 0.5))
	require.NoError(t, err)

	assert.Equal(t, model.VerdictBlock, res.Verdict)
	assert.Equal(t, "escalation registration failed", res.Reason)
	assert.Nil(t, res.EscalationID)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, model.VerdictBlock, h.audit.entries[0].Verdict)
}

func TestEvaluate_InvalidRequestIsNotAVerdict(t *testing.T) {
	h := newHarness(t, testPolicy)

	_, err := h.engine.Evaluate(context.Background(), model.EvaluationRequest{
		ToolName:        "",
		DeviceTargets:   []string{"sw-01"},
		ConfidenceScore: 0.9,
	})
	require.Error(t, err)
	assert.Empty(t, h.audit.entries, "invalid input is rejected before the pipeline runs")
}

func TestEvaluate_InvalidatesEASAfterAppend(t *testing.T) {
	h := newHarness(t, testPolicy)
	ctx := context.Background()

	_, err := h.engine.Evaluate(ctx, request("show_interfaces", 0.99))
	require.NoError(t, err)
	first := h.counts.calls

	_, err = h.engine.Evaluate(ctx, request("show_interfaces", 0.99))
	require.NoError(t, err)
	assert.Greater(t, h.counts.calls, first,
		"the verdict just written must be visible to the next EAS read")
}

func TestEvaluate_MonotonicAuditTimestamps(t *testing.T) {
	h := newHarness(t, testPolicy)
	frozen := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	h.engine.now = func() time.Time { return frozen }
	ctx := context.Background()

	for range 3 {
		_, err := h.engine.Evaluate(ctx, request("show_interfaces", 0.99))
		require.NoError(t, err)
	}

	require.Len(t, h.audit.entries, 3)
	for i := 1; i < len(h.audit.entries); i++ {
		assert.True(t, h.audit.entries[i].Timestamp.After(h.audit.entries[i-1].Timestamp),
			"timestamps must be strictly increasing even under a frozen clock")
	}
}

func TestRecordExecution_SanitizesBeforePersisting(t *testing.T) {
	h := newHarness(t, testPolicy)

	entry, err := h.engine.RecordExecution(context.Background(), model.RecordExecutionRequest{
		ToolName:        "configure_vlan",
		DeviceTarget:    "sw-01",
		CommandSent:     "snmp-server community PUBLIC",
		Output:          "password 7 094F471A1A0A",
		Success:         true,
		DurationSeconds: 1.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "snmp-server community ***REDACTED***", entry.CommandSent)
	assert.Equal(t, "password 7 ***REDACTED***", entry.Output)
	require.Len(t, h.exec.entries, 1)
	assert.NotContains(t, h.exec.entries[0].Output, "094F471A1A0A")
}

func TestRecordExecution_RequiresToolAndTarget(t *testing.T) {
	h := newHarness(t, testPolicy)

	_, err := h.engine.RecordExecution(context.Background(), model.RecordExecutionRequest{
		DeviceTarget: "sw-01",
	})
	require.Error(t, err)

	_, err = h.engine.RecordExecution(context.Background(), model.RecordExecutionRequest{
		ToolName: "configure_vlan",
	})
	require.Error(t, err)
	assert.Empty(t, h.exec.entries)
}
