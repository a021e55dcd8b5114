package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/adalundhe/relay/core/pipeline"
	"github.com/adalundhe/relay/core/plan"
	"github.com/adalundhe/relay/core/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_RunsStepsInOrder(t *testing.T) {
	registry := pipeline.NewRegistry()
	var order []string
	registry.Register("researcher", pipeline.AgentFunc(func(ctx context.Context, action string, params, input map[string]any) (any, error) {
		order = append(order, "researcher")
		return map[string]any{"sources": []string{"doc-1"}}, nil
	}))
	registry.Register("validator", pipeline.AgentFunc(func(ctx context.Context, action string, params, input map[string]any) (any, error) {
		order = append(order, "validator")
		return map[string]any{"valid": true}, nil
	}))

	executor := pipeline.NewExecutor(registry, nil)
	steps := []plan.Step{
		{Agent: "researcher", Action: "research"},
		{Agent: "validator", Action: "validate_answer"},
	}

	result, err := executor.Execute(context.Background(), steps, "pricing")
	require.NoError(t, err)
	assert.Equal(t, []string{"researcher", "validator"}, order)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, "pricing", result.Intent)
	require.Len(t, result.Steps, 2)
}

func TestExecutor_AccumulatesStructuredResults(t *testing.T) {
	registry := pipeline.NewRegistry()
	registry.Register("researcher", pipeline.AgentFunc(func(ctx context.Context, action string, params, input map[string]any) (any, error) {
		// First step sees no accumulated data.
		assert.Empty(t, input)
		return map[string]any{"facts": "fresh"}, nil
	}))
	registry.Register("validator", pipeline.AgentFunc(func(ctx context.Context, action string, params, input map[string]any) (any, error) {
		// Later steps see earlier structured results.
		assert.Equal(t, "fresh", input["facts"])
		return "ok", nil
	}))

	executor := pipeline.NewExecutor(registry, nil)
	steps := []plan.Step{
		{Agent: "researcher", Action: "research"},
		{Agent: "validator", Action: "validate_answer"},
	}

	result, err := executor.Execute(context.Background(), steps, "general")
	require.NoError(t, err)

	// Non-map results are recorded but not merged.
	assert.Equal(t, "fresh", result.Data["facts"])
	assert.Equal(t, "ok", result.Steps[1].Result)
	_, merged := result.Data["ok"]
	assert.False(t, merged)
}

func TestExecutor_UnregisteredAgentYieldsPending(t *testing.T) {
	executor := pipeline.NewExecutor(pipeline.NewRegistry(), nil)
	steps := []plan.Step{{Agent: "researcher", Action: "research"}}

	result, err := executor.Execute(context.Background(), steps, "general")
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.True(t, result.Steps[0].Pending)

	placeholder, ok := result.Steps[0].Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pending", placeholder["status"])
	assert.Equal(t, "researcher", placeholder["agent"])
}

func TestExecutor_StepErrorAborts(t *testing.T) {
	registry := pipeline.NewRegistry()
	boom := errors.New("research backend down")
	var validatorRan bool
	registry.Register("researcher", pipeline.AgentFunc(func(ctx context.Context, action string, params, input map[string]any) (any, error) {
		return nil, boom
	}))
	registry.Register("validator", pipeline.AgentFunc(func(ctx context.Context, action string, params, input map[string]any) (any, error) {
		validatorRan = true
		return nil, nil
	}))

	executor := pipeline.NewExecutor(registry, nil)
	steps := []plan.Step{
		{Agent: "researcher", Action: "research"},
		{Agent: "validator", Action: "validate_answer"},
	}

	result, err := executor.Execute(context.Background(), steps, "general")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, result)
	assert.False(t, validatorRan)
}

func TestExecutor_EmitsTrace(t *testing.T) {
	tracer := trace.NewLogger(trace.Config{Enabled: true})
	executor := pipeline.NewExecutor(pipeline.NewRegistry(), tracer)

	steps := []plan.Step{{Agent: "validator", Action: "validate_answer"}}
	_, err := executor.Execute(context.Background(), steps, "general")
	require.NoError(t, err)

	entries := tracer.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "execute_step", entries[0].Action)
	assert.Equal(t, "pipeline_completed", entries[len(entries)-1].Action)
}
