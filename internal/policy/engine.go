// Package policy decides whether a plugin run may start, using OPA/rego.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by a policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Input is the document a start policy is evaluated against.
type Input struct {
	PluginID   int    `json:"plugin_id"`
	PluginName string `json:"plugin_name"`
	Enabled    bool   `json:"enabled"`
	ScopeKind  string `json:"scope_kind"`
	EntryName  string `json:"entry_name,omitempty"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine from rego source defining
// data.plugin_policy.decision.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.plugin_policy.decision"),
		rego.Module("plugin_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy at path, or DefaultPolicy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate returns the decision (allow or block) and an optional reason.
// The policy may produce either a bare string or {"decision": ..., "reason": ...}.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "no decision", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]interface{}:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			return DecisionAllow, "missing decision", nil
		}
		return decision, reason, nil
	default:
		return DecisionAllow, "unexpected return type", nil
	}
}

// Allow implements the tracker gate: it reports whether the run may start.
func (e *Engine) Allow(ctx context.Context, input Input) (bool, string, error) {
	decision, reason, err := e.Evaluate(ctx, input)
	if err != nil {
		return false, "", err
	}
	return decision != DecisionBlock, reason, nil
}

// DefaultPolicy allows every run of an enabled plugin.
const DefaultPolicy = `
package plugin_policy

default decision = {"decision": "allow"}

decision = {"decision": "block", "reason": "plugin is disabled"} {
	input.enabled == false
}
`
