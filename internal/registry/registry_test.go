package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/intentd/internal/execution"
)

func noopHandler(_ context.Context, _ *execution.Context, _ map[string]any) (execution.Result, error) {
	return execution.Result{Status: execution.StatusCompleted}, nil
}

func TestRegister_RequiresAllFields(t *testing.T) {
	r := New(nil)

	err := r.Register(Registration{HandlerName: "workflow", Fn: noopHandler})
	assert.ErrorIs(t, err, ErrInvalidRegistration)

	err = r.Register(Registration{IntentType: "create_workflow", Fn: noopHandler})
	assert.ErrorIs(t, err, ErrInvalidRegistration)

	err = r.Register(Registration{IntentType: "create_workflow", HandlerName: "workflow"})
	assert.ErrorIs(t, err, ErrInvalidRegistration)
}

func TestLookup_ReturnsRegistrationOrder(t *testing.T) {
	r := New(nil)

	require.NoError(t, r.Register(Registration{IntentType: "create_workflow", HandlerName: "workflow", Fn: noopHandler}))
	require.NoError(t, r.Register(Registration{IntentType: "create_workflow", HandlerName: "audit", Fn: noopHandler}))

	regs := r.Lookup("create_workflow")
	require.Len(t, regs, 2)
	assert.Equal(t, "workflow", regs[0].HandlerName)
	assert.Equal(t, "audit", regs[1].HandlerName)
}

func TestLookup_UnknownIntentTypeIsEmpty(t *testing.T) {
	r := New(nil)
	assert.Nil(t, r.Lookup("unknown"))
}

func TestRegister_UpdateInPlaceKeepsPosition(t *testing.T) {
	r := New(nil)

	require.NoError(t, r.Register(Registration{IntentType: "create_workflow", HandlerName: "workflow", Fn: noopHandler}))
	require.NoError(t, r.Register(Registration{IntentType: "create_workflow", HandlerName: "audit", Fn: noopHandler}))

	// Re-register the first handler with a new field list.
	require.NoError(t, r.Register(Registration{
		IntentType:  "create_workflow",
		HandlerName: "workflow",
		Fn:          noopHandler,
		Fields:      []string{"name"},
	}))

	regs := r.Lookup("create_workflow")
	require.Len(t, regs, 2)
	assert.Equal(t, "workflow", regs[0].HandlerName)
	assert.Equal(t, []string{"name"}, regs[0].Fields)
}

func TestUnregister(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Registration{IntentType: "create_workflow", HandlerName: "workflow", Fn: noopHandler}))

	require.NoError(t, r.Unregister("create_workflow", "workflow"))
	assert.Nil(t, r.Lookup("create_workflow"))

	err := r.Unregister("create_workflow", "workflow")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestLookup_ReturnsCopy(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Registration{IntentType: "create_workflow", HandlerName: "workflow", Fn: noopHandler}))

	regs := r.Lookup("create_workflow")
	regs[0].HandlerName = "mutated"

	fresh := r.Lookup("create_workflow")
	assert.Equal(t, "workflow", fresh[0].HandlerName)
}

func TestIntentTypes(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Registration{IntentType: "create_workflow", HandlerName: "workflow", Fn: noopHandler}))
	require.NoError(t, r.Register(Registration{IntentType: "promote_artifact", HandlerName: "realm", Fn: noopHandler}))

	assert.ElementsMatch(t, []string{"create_workflow", "promote_artifact"}, r.IntentTypes())
}
