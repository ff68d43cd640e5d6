// Package executor is the only component permitted to trigger a real-world
// effect. Every execution resolves the action through the access policy,
// re-validates the resolved entity, and passes the OPA action gate before
// the single service invocation. Validation failures produce zero
// invocations; a failed device call is logged and reported, never escalated.
package executor

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	foyerotel "github.com/foyer-io/foyer/internal/otel"
	"github.com/foyer-io/foyer/internal/policy"
)

var tracer = foyerotel.Tracer("github.com/foyer-io/foyer/internal/executor")

// ServiceCaller invokes a service on one entity. Satisfied by hass.Client.
type ServiceCaller interface {
	CallService(ctx context.Context, service, entityID string) error
}

// Executor gates and performs vocabulary actions.
type Executor struct {
	policy *policy.Policy
	engine *policy.Engine
	caller ServiceCaller
}

// New creates an executor bound to the given policy, gate engine, and caller.
func New(pol *policy.Policy, engine *policy.Engine, caller ServiceCaller) *Executor {
	return &Executor{policy: pol, engine: engine, caller: caller}
}

// Execute resolves and performs the named action. Returns true only when the
// external service call succeeded. Unauthorized or unknown actions return
// false with a warning log and cause no invocation.
func (e *Executor) Execute(ctx context.Context, action string) bool {
	ctx, span := tracer.Start(ctx, "executor.execute")
	defer span.End()
	span.SetAttributes(attribute.String("action.name", action))

	mapped, ok := e.policy.ResolveAction(action)
	if !ok {
		log.Warn().Str("action", action).Msg("unauthorized_action_attempt")
		return false
	}

	// Construction-time invariants should make this unreachable; the
	// re-check guards against a future mapping added without updating
	// the entity allowlist.
	if !e.policy.AllowsEntity(mapped.EntityID) {
		log.Warn().Str("action", action).Str("entity_id", mapped.EntityID).Msg("unauthorized_entity_access")
		return false
	}

	decision, err := e.engine.EvaluateActionAccess(ctx, action, mapped.Service, mapped.EntityID)
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("action_gate_evaluation_failed")
		return false
	}
	if !decision.Allowed {
		log.Warn().
			Str("action", action).
			Strs("reasons", decision.Reasons).
			Msg("action_denied_by_policy")
		return false
	}

	if err := e.caller.CallService(ctx, mapped.Service, mapped.EntityID); err != nil {
		log.Error().Err(err).Str("action", action).Msg("action_execution_failed")
		return false
	}

	log.Info().
		Str("action", action).
		Str("entity_id", mapped.EntityID).
		Str("description", mapped.Description).
		Msg("action_executed")
	return true
}
