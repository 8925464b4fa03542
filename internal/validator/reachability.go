package validator

import (
	"context"
	"fmt"

	"github.com/sentra-ai/sna/internal/model"
)

// StateKeyReachable is the snapshot key reporting whether the device
// answered a reachability probe.
const StateKeyReachable = "reachable"

// Reachability verifies the device still answers after a change. The caller
// probes the device and records the outcome in the after snapshot; this
// validator only interprets it.
type Reachability struct{}

// NewReachability creates the validator.
func NewReachability() *Reachability { return &Reachability{} }

// Name implements Validator.
func (v *Reachability) Name() string { return "device_reachability" }

// Validate implements Validator.
func (v *Reachability) Validate(_ context.Context, req model.ValidateRequest) model.ValidationResult {
	raw, ok := req.AfterState[StateKeyReachable]
	if !ok {
		return model.ValidationResult{
			Status:  model.ValidationSkip,
			Message: "reachable missing from after state",
		}
	}
	reachable, ok := raw.(bool)
	if !ok {
		return model.ValidationResult{
			Status:  model.ValidationError,
			Message: fmt.Sprintf("reachable has unexpected type %T", raw),
		}
	}
	if !reachable {
		return model.ValidationResult{
			Status:  model.ValidationFail,
			Message: fmt.Sprintf("device %s unreachable after %s", req.DeviceTarget, req.ToolName),
		}
	}
	return model.ValidationResult{
		Status:  model.ValidationPass,
		Message: "device reachable",
	}
}
