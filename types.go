package sna

import "context"

// Event is a notification payload delivered to a Notifier.
type Event struct {
	Kind    string
	Subject string
	Message string
	Fields  map[string]any
}

// Notifier delivers escalation and validation events to one channel
// (webhook, chat, pager). Implementations must be safe for concurrent use
// and must not block evaluation.
type Notifier interface {
	Channel() string
	Send(ctx context.Context, ev Event) error
}

// ValidationInput carries the before/after device state snapshots a
// validator inspects.
type ValidationInput struct {
	ToolName     string
	DeviceTarget string
	BeforeState  map[string]any
	AfterState   map[string]any
}

// ValidationOutcome is one validator's result. Status must be one of
// PASS, FAIL, SKIP, or ERROR.
type ValidationOutcome struct {
	Status  string
	Message string
	Details map[string]any
}

// Validator checks one aspect of an executed action.
type Validator interface {
	Name() string
	Validate(ctx context.Context, in ValidationInput) ValidationOutcome
}
