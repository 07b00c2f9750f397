package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/curator"
	"github.com/fyrsmithlabs/intentd/internal/execution"
	"github.com/fyrsmithlabs/intentd/internal/intent"
	"github.com/fyrsmithlabs/intentd/internal/registry"
)

func testContext(t *testing.T, intentType string) *execution.Context {
	t.Helper()
	in, err := intent.New(intentType, "t1", "s1", "sol1", map[string]any{"name": "w", "secret": "x"})
	require.NoError(t, err)
	ec, err := execution.NewContext(in, nil, nil)
	require.NoError(t, err)
	return ec
}

func newTestExecutor(t *testing.T, rules RulesProvider) (*Executor, *registry.Registry) {
	t.Helper()
	reg := registry.New(zap.NewNop())
	e, err := New(reg, rules, zap.NewNop())
	require.NoError(t, err)
	return e, reg
}

func TestSubmitIntent_MissingRealmHandler(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	ec := testContext(t, "content.upload")

	result := e.SubmitIntent(context.Background(), "content.upload", "content", nil, ec)

	assert.False(t, result.Success)
	assert.Equal(t, "Realm handler not found: content", result.Error)
}

func TestSubmitIntent_RoutesToMatchingRealm(t *testing.T) {
	e, reg := newTestExecutor(t, nil)
	ec := testContext(t, "create_workflow")

	var invoked int
	require.NoError(t, reg.Register(registry.Registration{
		IntentType:  "create_workflow",
		HandlerName: "workflow",
		Fields:      []string{"name"},
		Fn: func(_ context.Context, _ *execution.Context, params map[string]any) (execution.Result, error) {
			invoked++
			return execution.Result{
				Status: execution.StatusCompleted,
				Output: map[string]any{"got": params},
			}, nil
		},
	}))
	// A second handler on the same intent type for a different realm must
	// not be invoked.
	require.NoError(t, reg.Register(registry.Registration{
		IntentType:  "create_workflow",
		HandlerName: "audit",
		Fn: func(_ context.Context, _ *execution.Context, _ map[string]any) (execution.Result, error) {
			t.Fatal("wrong realm handler invoked")
			return execution.Result{}, nil
		},
	}))

	result := e.SubmitIntent(context.Background(), "create_workflow", "workflow", ec.Intent.Parameters, ec)

	require.True(t, result.Success)
	assert.Equal(t, execution.StatusCompleted, result.Status)
	assert.Equal(t, 1, invoked, "exactly one handler invocation per call")
	assert.Equal(t, ec.ExecutionID, result.ExecutionID)
	assert.Equal(t, ec.Intent.IntentID, result.IntentID)
}

func TestSubmitIntent_PayloadFilteredToAllowList(t *testing.T) {
	e, reg := newTestExecutor(t, nil)
	ec := testContext(t, "create_workflow")

	var seen map[string]any
	require.NoError(t, reg.Register(registry.Registration{
		IntentType:  "create_workflow",
		HandlerName: "workflow",
		Fields:      []string{"name"},
		Fn: func(_ context.Context, _ *execution.Context, params map[string]any) (execution.Result, error) {
			seen = params
			return execution.Result{Status: execution.StatusCompleted}, nil
		},
	}))

	e.SubmitIntent(context.Background(), "create_workflow", "workflow",
		map[string]any{"name": "w", "secret": "leak"}, ec)

	assert.Equal(t, map[string]any{"name": "w"}, seen, "raw payload must not reach the handler")
}

func TestSubmitIntent_HandlerErrorConverted(t *testing.T) {
	e, reg := newTestExecutor(t, nil)
	ec := testContext(t, "create_workflow")

	require.NoError(t, reg.Register(registry.Registration{
		IntentType:  "create_workflow",
		HandlerName: "workflow",
		Fn: func(_ context.Context, _ *execution.Context, _ map[string]any) (execution.Result, error) {
			return execution.Result{}, errors.New("backend exploded")
		},
	}))

	result := e.SubmitIntent(context.Background(), "create_workflow", "workflow", nil, ec)

	assert.False(t, result.Success)
	assert.Equal(t, execution.StatusFailed, result.Status)
	assert.Equal(t, "backend exploded", result.Error)
}

func TestSubmitIntent_HandlerPanicConverted(t *testing.T) {
	e, reg := newTestExecutor(t, nil)
	ec := testContext(t, "create_workflow")

	require.NoError(t, reg.Register(registry.Registration{
		IntentType:  "create_workflow",
		HandlerName: "workflow",
		Fn: func(_ context.Context, _ *execution.Context, _ map[string]any) (execution.Result, error) {
			panic("nil map write")
		},
	}))

	result := e.SubmitIntent(context.Background(), "create_workflow", "workflow", nil, ec)

	assert.Equal(t, execution.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "handler panic")
}

func TestSubmitIntent_CapabilityMissRoutesAnyway(t *testing.T) {
	rules := func() curator.Rules { return curator.Rules{} }
	e, reg := newTestExecutor(t, rules)
	ec := testContext(t, "create_workflow")

	require.NoError(t, reg.Register(registry.Registration{
		IntentType:  "create_workflow",
		HandlerName: "workflow",
		Fn: func(_ context.Context, _ *execution.Context, _ map[string]any) (execution.Result, error) {
			return execution.Result{Status: execution.StatusCompleted}, nil
		},
	}))

	result := e.SubmitIntent(context.Background(), "create_workflow", "workflow", nil, ec)
	assert.True(t, result.Completed(), "unregistered capability degrades gracefully")
}

func TestSubmitIntent_DisabledCapabilityDenied(t *testing.T) {
	rules := func() curator.Rules {
		return curator.Rules{Capabilities: map[string]curator.CapabilityRule{
			"create_workflow": {Disabled: true},
		}}
	}
	e, reg := newTestExecutor(t, rules)
	ec := testContext(t, "create_workflow")

	require.NoError(t, reg.Register(registry.Registration{
		IntentType:  "create_workflow",
		HandlerName: "workflow",
		Fn: func(_ context.Context, _ *execution.Context, _ map[string]any) (execution.Result, error) {
			t.Fatal("denied submission must not reach the handler")
			return execution.Result{}, nil
		},
	}))

	result := e.SubmitIntent(context.Background(), "create_workflow", "workflow", nil, ec)

	assert.False(t, result.Success)
	assert.Equal(t, execution.StatusPolicyDenied, result.Status)
	assert.Equal(t, curator.BasisCapabilityPolicy, result.PolicyBasis)
}

func TestSubmitIntent_TenantRestrictedCapabilityDenied(t *testing.T) {
	rules := func() curator.Rules {
		return curator.Rules{Capabilities: map[string]curator.CapabilityRule{
			"create_workflow": {AllowedTenants: []string{"other"}},
		}}
	}
	e, _ := newTestExecutor(t, rules)
	ec := testContext(t, "create_workflow")

	result := e.SubmitIntent(context.Background(), "create_workflow", "workflow", nil, ec)

	assert.Equal(t, execution.StatusPolicyDenied, result.Status)
	assert.Equal(t, curator.BasisTenantPolicy, result.PolicyBasis)
}

func TestSubmitIntent_NilContextFails(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	result := e.SubmitIntent(context.Background(), "create_workflow", "workflow", nil, nil)
	assert.Equal(t, execution.StatusFailed, result.Status)
}
