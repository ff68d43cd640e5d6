package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed rego/*.rego
var embeddedPolicies embed.FS

const actionAccessPolicy = "rego/action_access.rego"

// Decision represents the result of an action-gate evaluation.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Action        string   `json:"action"` // "allow" or "deny"
	Reasons       []string `json:"reasons,omitempty"`
	PolicyVersion string   `json:"policy_version"`
}

// Engine evaluates the action gate using embedded OPA. It is the independent
// second check behind Policy's map lookups: the executor consults both, so a
// bug in one cannot by itself open the gate.
type Engine struct {
	policy   *Policy
	prepared rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the precompiled action-access Rego
// policy. The Policy's allowlists and action mapping are serialized to JSON
// and loaded as OPA data.
func NewEngine(ctx context.Context, pol *Policy) (*Engine, error) {
	ctx, span := tracer.Start(ctx, "policy.engine.new")
	defer span.End()

	policyData, err := policyToData(pol)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("converting policy to OPA data: %w", err)
	}

	content, err := embeddedPolicies.ReadFile(actionAccessPolicy)
	if err != nil {
		return nil, fmt.Errorf("reading embedded policy %s: %w", actionAccessPolicy, err)
	}

	store := inmem.NewFromObject(map[string]interface{}{
		"policy": policyData,
	})

	r := rego.New(
		rego.Query("data.foyer.policy.action_access.deny"),
		rego.Module(actionAccessPolicy, string(content)),
		rego.Store(store),
	)

	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing Rego policy %s: %w", actionAccessPolicy, err)
	}

	return &Engine{
		policy:   pol,
		prepared: prepared,
	}, nil
}

// EvaluateActionAccess checks whether the resolved (action, service, entity)
// triple may proceed to a real service call.
func (e *Engine) EvaluateActionAccess(ctx context.Context, action, service, entityID string) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "policy.evaluate_action_access")
	defer span.End()

	span.SetAttributes(attribute.String("action.name", action))

	input := map[string]interface{}{
		"action":    action,
		"service":   service,
		"entity_id": entityID,
	}

	decision := &Decision{
		Allowed:       true,
		Action:        "allow",
		PolicyVersion: e.policy.VersionTag,
	}

	reasons, err := e.evaluateDenyReasons(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	decision.Reasons = append(decision.Reasons, reasons...)

	if len(decision.Reasons) > 0 {
		decision.Allowed = false
		decision.Action = "deny"
	}

	span.SetAttributes(
		attribute.Bool("policy.allowed", decision.Allowed),
		attribute.Int("policy.deny_reasons", len(decision.Reasons)),
	)
	if decision.Allowed {
		span.SetStatus(codes.Ok, "policy evaluation passed")
	}

	return decision, nil
}

// evaluateDenyReasons runs the prepared Rego query, which produces a set of
// deny reason strings. OPA returns the set as []interface{} or, occasionally,
// map[string]interface{}.
func (e *Engine) evaluateDenyReasons(ctx context.Context, input map[string]interface{}) ([]string, error) {
	results, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", actionAccessPolicy, err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	var reasons []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []interface{}:
		for _, msg := range v {
			if msgStr, ok := msg.(string); ok {
				reasons = append(reasons, msgStr)
			}
		}
	case map[string]interface{}:
		for _, msg := range v {
			if msgStr, ok := msg.(string); ok {
				reasons = append(reasons, msgStr)
			}
		}
	}

	return reasons, nil
}

// policyToData converts a Policy to map[string]interface{} for OPA.
// We marshal to JSON then unmarshal to get clean map types.
func policyToData(pol *Policy) (map[string]interface{}, error) {
	jsonBytes, err := json.Marshal(pol)
	if err != nil {
		return nil, fmt.Errorf("marshalling policy: %w", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return nil, fmt.Errorf("unmarshalling policy data: %w", err)
	}

	return data, nil
}
