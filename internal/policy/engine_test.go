package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *Policy) {
	t.Helper()
	pol, err := Default()
	require.NoError(t, err)
	engine, err := NewEngine(context.Background(), pol)
	require.NoError(t, err)
	return engine, pol
}

func TestEngineAllowsMappedAction(t *testing.T) {
	engine, pol := newTestEngine(t)

	a, ok := pol.ResolveAction("turn_on_fan")
	require.True(t, ok)

	decision, err := engine.EvaluateActionAccess(context.Background(), "turn_on_fan", a.Service, a.EntityID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reasons)
	assert.Equal(t, pol.VersionTag, decision.PolicyVersion)
}

func TestEngineDeniesUnknownAction(t *testing.T) {
	engine, _ := newTestEngine(t)

	decision, err := engine.EvaluateActionAccess(context.Background(),
		"self_destruct", "switch/turn_on", "switch.smarthome_node_dc_motor_fan")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.Reasons)
}

func TestEngineDeniesUnlistedEntity(t *testing.T) {
	engine, _ := newTestEngine(t)

	decision, err := engine.EvaluateActionAccess(context.Background(),
		"turn_on_fan", "switch/turn_on", "switch.garage_door")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEngineDeniesUnlistedService(t *testing.T) {
	engine, _ := newTestEngine(t)

	decision, err := engine.EvaluateActionAccess(context.Background(),
		"turn_on_fan", "switch/toggle", "switch.smarthome_node_dc_motor_fan")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEngineDeniesMappingMismatch(t *testing.T) {
	engine, _ := newTestEngine(t)

	// Allowlisted entity, but not the one the action maps to.
	decision, err := engine.EvaluateActionAccess(context.Background(),
		"turn_on_fan", "switch/turn_on", "switch.smarthome_node_smart_home_light")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}
