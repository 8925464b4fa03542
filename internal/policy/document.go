// Package policy parses, validates, and serves immutable policy documents.
//
// A document is a versioned YAML file carrying the tool catalog, the
// unknown-tool default verdict, and the EAS adjustment curve. Documents are
// immutable after parse; reloads swap an atomic snapshot pointer so the
// evaluation read path never blocks.
package policy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sentra-ai/sna/internal/model"
)

// Tool is one catalog entry.
type Tool struct {
	Name                   string
	Tier                   model.RiskTier
	ConfidenceThreshold    float64
	MaxTargets             int
	RequiresAudit          bool
	RequiresSeniorApproval bool
	Params                 *ParamPolicy
}

// ParamPolicy is the optional parameter constraint predicate for a tool.
type ParamPolicy struct {
	// Allowed restricts parameter keys; empty means any key is accepted.
	Allowed []string `yaml:"allowed"`
	// Required keys must be present.
	Required []string `yaml:"required"`
	// Values restricts specific keys to an enumerated value set.
	Values map[string][]string `yaml:"values"`
	// MaxLength bounds the rendered length of any parameter value.
	// Zero means unbounded.
	MaxLength int `yaml:"max_length"`
}

// Check runs the predicate against request parameters. The first violation
// is returned; iteration order is deterministic so the same request always
// reports the same constraint.
func (p *ParamPolicy) Check(params map[string]any) error {
	for _, key := range p.Required {
		if _, ok := params[key]; !ok {
			return fmt.Errorf("required parameter %q is missing", key)
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	allowed := make(map[string]bool, len(p.Allowed))
	for _, k := range p.Allowed {
		allowed[k] = true
	}

	for _, k := range keys {
		if len(p.Allowed) > 0 && !allowed[k] {
			return fmt.Errorf("parameter %q is not permitted for this tool", k)
		}
		val := fmt.Sprint(params[k])
		if p.MaxLength > 0 && len(val) > p.MaxLength {
			return fmt.Errorf("parameter %q exceeds maximum length of %d characters", k, p.MaxLength)
		}
		if enum, ok := p.Values[k]; ok {
			found := false
			for _, want := range enum {
				if val == want {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("parameter %q has disallowed value %q", k, val)
			}
		}
	}
	return nil
}

// Document is one immutable policy snapshot.
type Document struct {
	Version        string
	DefaultVerdict model.Verdict
	Curve          Curve
	Tools          map[string]*Tool
}

// Lookup returns the catalog entry for a tool name, or nil if absent.
func (d *Document) Lookup(toolName string) *Tool {
	return d.Tools[toolName]
}

// LoadError is a policy parse/validation failure with document context.
type LoadError struct {
	Field string
	Line  int
	Msg   string
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("policy: line %d: %s: %s", e.Line, e.Field, e.Msg)
	}
	return fmt.Sprintf("policy: %s: %s", e.Field, e.Msg)
}

// toolKeys is the strict set of per-tool keys. Unknown per-tool keys are
// rejected at load time; unknown top-level keys are warned and ignored.
var toolKeys = map[string]bool{
	"tier":                     true,
	"confidence_threshold":     true,
	"max_targets":              true,
	"requires_audit":           true,
	"requires_senior_approval": true,
	"parameters":               true,
}

type rawTool struct {
	Tier                   string       `yaml:"tier"`
	ConfidenceThreshold    *float64     `yaml:"confidence_threshold"`
	MaxTargets             *int         `yaml:"max_targets"`
	RequiresAudit          bool         `yaml:"requires_audit"`
	RequiresSeniorApproval bool         `yaml:"requires_senior_approval"`
	Parameters             *ParamPolicy `yaml:"parameters"`
}

// Parse decodes and validates a policy document. Warnings (ignored unknown
// top-level keys) are returned separately so callers can log them.
func Parse(data []byte) (*Document, []string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, &LoadError{Field: "document", Msg: err.Error()}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, nil, &LoadError{Field: "document", Msg: "top level must be a mapping"}
	}
	mapping := root.Content[0]

	doc := &Document{Tools: make(map[string]*Tool)}
	var warnings []string
	seen := map[string]bool{}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode, valNode := mapping.Content[i], mapping.Content[i+1]
		key := keyNode.Value
		seen[key] = true

		switch key {
		case "version":
			if err := valNode.Decode(&doc.Version); err != nil || doc.Version == "" {
				return nil, nil, &LoadError{Field: "version", Line: valNode.Line, Msg: "must be a non-empty string"}
			}
		case "default_verdict":
			var v string
			if err := valNode.Decode(&v); err != nil {
				return nil, nil, &LoadError{Field: "default_verdict", Line: valNode.Line, Msg: err.Error()}
			}
			doc.DefaultVerdict = model.Verdict(v)
			if doc.DefaultVerdict != model.VerdictBlock {
				return nil, nil, &LoadError{Field: "default_verdict", Line: valNode.Line, Msg: "must be BLOCK (fail-closed)"}
			}
		case "eas_curve":
			curve, err := parseCurve(valNode)
			if err != nil {
				return nil, nil, err
			}
			doc.Curve = curve
		case "tools":
			if err := parseTools(valNode, doc); err != nil {
				return nil, nil, err
			}
		default:
			warnings = append(warnings, fmt.Sprintf("unknown top-level key %q ignored (line %d)", key, keyNode.Line))
		}
	}

	for _, required := range []string{"version", "default_verdict", "eas_curve", "tools"} {
		if !seen[required] {
			return nil, nil, &LoadError{Field: required, Msg: "is required"}
		}
	}
	return doc, warnings, nil
}

func parseTools(node *yaml.Node, doc *Document) error {
	if node.Kind != yaml.MappingNode {
		return &LoadError{Field: "tools", Line: node.Line, Msg: "must be a mapping of tool name to definition"}
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		nameNode, toolNode := node.Content[i], node.Content[i+1]
		name := nameNode.Value
		if name == "" {
			return &LoadError{Field: "tools", Line: nameNode.Line, Msg: "tool name must not be empty"}
		}
		if toolNode.Kind != yaml.MappingNode {
			return &LoadError{Field: "tools." + name, Line: toolNode.Line, Msg: "must be a mapping"}
		}

		// Per-tool keys are strict: anything unknown is a load failure.
		for j := 0; j+1 < len(toolNode.Content); j += 2 {
			k := toolNode.Content[j]
			if !toolKeys[k.Value] {
				return &LoadError{Field: "tools." + name + "." + k.Value, Line: k.Line, Msg: "unknown key"}
			}
		}

		var raw rawTool
		if err := toolNode.Decode(&raw); err != nil {
			return &LoadError{Field: "tools." + name, Line: toolNode.Line, Msg: err.Error()}
		}

		tier := model.RiskTier(raw.Tier)
		if !tier.Valid() {
			return &LoadError{Field: "tools." + name + ".tier", Line: toolNode.Line, Msg: fmt.Sprintf("invalid tier %q", raw.Tier)}
		}
		if raw.ConfidenceThreshold == nil {
			return &LoadError{Field: "tools." + name + ".confidence_threshold", Line: toolNode.Line, Msg: "is required"}
		}
		if *raw.ConfidenceThreshold < 0 || *raw.ConfidenceThreshold > 1 {
			return &LoadError{Field: "tools." + name + ".confidence_threshold", Line: toolNode.Line, Msg: "must be in [0, 1]"}
		}
		if raw.MaxTargets == nil || *raw.MaxTargets < 1 {
			return &LoadError{Field: "tools." + name + ".max_targets", Line: toolNode.Line, Msg: "must be a positive integer"}
		}

		doc.Tools[name] = &Tool{
			Name:                   name,
			Tier:                   tier,
			ConfidenceThreshold:    *raw.ConfidenceThreshold,
			MaxTargets:             *raw.MaxTargets,
			RequiresAudit:          raw.RequiresAudit,
			RequiresSeniorApproval: raw.RequiresSeniorApproval,
			Params:                 raw.Parameters,
		}
	}
	return nil
}

// LoadFile parses a policy document from disk.
func LoadFile(path string) (*Document, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(data)
}
