package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentra-ai/sna/internal/diff"
	"github.com/sentra-ai/sna/internal/model"
)

// StateKeyRunningConfig is the snapshot key holding the device's running
// configuration text.
const StateKeyRunningConfig = "running_config"

// SemanticDiff compares the running configuration before and after an
// action and verifies the change actually landed. An action that produces
// no semantic config change is a failure: the device silently ignored it or
// the caller captured the wrong state.
type SemanticDiff struct{}

// NewSemanticDiff creates the validator.
func NewSemanticDiff() *SemanticDiff { return &SemanticDiff{} }

// Name implements Validator.
func (v *SemanticDiff) Name() string { return "semantic_config_diff" }

// Validate implements Validator. A state whose running_config is missing or
// blank yields SKIP: the caller could not capture the config, so there is
// nothing to judge.
func (v *SemanticDiff) Validate(_ context.Context, req model.ValidateRequest) model.ValidationResult {
	before, beforeOK := stateString(req.BeforeState, StateKeyRunningConfig)
	after, afterOK := stateString(req.AfterState, StateKeyRunningConfig)
	if !beforeOK || !afterOK {
		return model.ValidationResult{
			Status:  model.ValidationSkip,
			Message: "running_config missing or empty in before or after state",
		}
	}

	changes := diff.Diff(before, after)
	if len(changes) == 0 {
		return model.ValidationResult{
			Status:  model.ValidationFail,
			Message: fmt.Sprintf("no semantic config changes detected after %s", req.ToolName),
		}
	}

	sections := make([]string, 0, len(changes))
	for _, c := range changes {
		sections = append(sections, fmt.Sprintf("%s %s", c.ChangeType, c.Section))
	}
	return model.ValidationResult{
		Status:  model.ValidationPass,
		Message: fmt.Sprintf("%d config section(s) changed", len(changes)),
		Details: map[string]any{
			"changes":  changes,
			"sections": sections,
		},
	}
}

// stateString returns the string under key, reporting false when the key is
// absent, not a string, or blank.
func stateString(state map[string]any, key string) (string, bool) {
	if state == nil {
		return "", false
	}
	s, ok := state[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
