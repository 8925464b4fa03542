package validator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-ai/sna/internal/model"
)

const beforeConfig = `interface GigabitEthernet0/1
 description uplink
 switchport access vlan 100
!
router ospf 1
 network 10.0.0.0 0.255.255.255 area 0
`

const afterConfig = `interface GigabitEthernet0/1
 description uplink
 switchport access vlan 200
!
router ospf 1
 network 10.0.0.0 0.255.255.255 area 0
`

func TestSemanticDiff_ChangesPass(t *testing.T) {
	v := NewSemanticDiff()

	res := v.Validate(context.Background(), model.ValidateRequest{
		ToolName:    "configure_vlan",
		BeforeState: map[string]any{StateKeyRunningConfig: beforeConfig},
		AfterState:  map[string]any{StateKeyRunningConfig: afterConfig},
	})

	assert.Equal(t, model.ValidationPass, res.Status)
	require.NotNil(t, res.Details)
	assert.Contains(t, res.Details["sections"], "MODIFIED interface GigabitEthernet0/1")
}

func TestSemanticDiff_NoChangesFail(t *testing.T) {
	v := NewSemanticDiff()

	res := v.Validate(context.Background(), model.ValidateRequest{
		ToolName:    "configure_vlan",
		BeforeState: map[string]any{StateKeyRunningConfig: beforeConfig},
		AfterState:  map[string]any{StateKeyRunningConfig: beforeConfig},
	})

	assert.Equal(t, model.ValidationFail, res.Status)
	assert.Equal(t, "no semantic config changes detected after configure_vlan", res.Message)
}

func TestSemanticDiff_MissingConfigSkips(t *testing.T) {
	v := NewSemanticDiff()

	res := v.Validate(context.Background(), model.ValidateRequest{
		ToolName:   "configure_vlan",
		AfterState: map[string]any{StateKeyRunningConfig: afterConfig},
	})

	assert.Equal(t, model.ValidationSkip, res.Status)
}

func TestSemanticDiff_EmptyConfigSkips(t *testing.T) {
	v := NewSemanticDiff()
	ctx := context.Background()

	// An empty capture means the state grab failed, not that the change
	// was ineffective.
	res := v.Validate(ctx, model.ValidateRequest{
		ToolName:    "configure_vlan",
		BeforeState: map[string]any{StateKeyRunningConfig: ""},
		AfterState:  map[string]any{StateKeyRunningConfig: ""},
	})
	assert.Equal(t, model.ValidationSkip, res.Status)

	res = v.Validate(ctx, model.ValidateRequest{
		ToolName:    "configure_vlan",
		BeforeState: map[string]any{StateKeyRunningConfig: "   \n"},
		AfterState:  map[string]any{StateKeyRunningConfig: afterConfig},
	})
	assert.Equal(t, model.ValidationSkip, res.Status)
}

func TestReachability(t *testing.T) {
	v := NewReachability()
	ctx := context.Background()

	res := v.Validate(ctx, model.ValidateRequest{
		DeviceTarget: "core-sw-01",
		AfterState:   map[string]any{StateKeyReachable: true},
	})
	assert.Equal(t, model.ValidationPass, res.Status)

	res = v.Validate(ctx, model.ValidateRequest{
		ToolName:     "configure_vlan",
		DeviceTarget: "core-sw-01",
		AfterState:   map[string]any{StateKeyReachable: false},
	})
	assert.Equal(t, model.ValidationFail, res.Status)
	assert.Contains(t, res.Message, "core-sw-01 unreachable")

	res = v.Validate(ctx, model.ValidateRequest{AfterState: map[string]any{}})
	assert.Equal(t, model.ValidationSkip, res.Status)

	res = v.Validate(ctx, model.ValidateRequest{
		AfterState: map[string]any{StateKeyReachable: "yes"},
	})
	assert.Equal(t, model.ValidationError, res.Status)
}

func TestComposite_WorstStatusWins(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	comp := NewComposite(logger, []Validator{
		NewSemanticDiff(),
		NewReachability(),
	})

	// Diff fails, reachability passes; overall FAIL.
	results, overall := comp.Run(context.Background(), model.ValidateRequest{
		ToolName:     "configure_vlan",
		DeviceTarget: "core-sw-01",
		BeforeState:  map[string]any{StateKeyRunningConfig: beforeConfig},
		AfterState: map[string]any{
			StateKeyRunningConfig: beforeConfig,
			StateKeyReachable:     true,
		},
	})
	require.Len(t, results, 2)
	assert.Equal(t, model.ValidationFail, overall)
	assert.Equal(t, "semantic_config_diff", results[0].TestcaseName)
	assert.Equal(t, "device_reachability", results[1].TestcaseName)
}

func TestComposite_EmptySetSkips(t *testing.T) {
	comp := NewComposite(slog.New(slog.DiscardHandler), nil)

	results, overall := comp.Run(context.Background(), model.ValidateRequest{})
	assert.Empty(t, results)
	assert.Equal(t, model.ValidationSkip, overall)
}
