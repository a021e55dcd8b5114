package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/adalundhe/relay/core/plan"
	"github.com/adalundhe/relay/core/trace"
)

// =============================================================================
// Pipeline Executor
// =============================================================================
//
// Executor runs an execution plan strictly in order. Later steps may depend
// on earlier accumulated data, so there is no parallelism inside a single
// request; concurrency across requests comes from the queue's worker pool.
// Steps routed to unregistered agents yield structured "pending" placeholder
// results instead of errors, so the pipeline degrades gracefully while not
// every agent is wired up. A step error aborts the remaining plan
// immediately.

// Agent executes one pipeline action. The input map is a copy of the data
// accumulated by earlier steps.
type Agent interface {
	Execute(ctx context.Context, action string, params, input map[string]any) (any, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, action string, params, input map[string]any) (any, error)

func (f AgentFunc) Execute(ctx context.Context, action string, params, input map[string]any) (any, error) {
	return f(ctx, action, params, input)
}

// Registry maps agent names to implementations.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register associates a name with an agent, overwriting silently.
func (r *Registry) Register(name string, agent Agent) {
	r.mu.Lock()
	r.agents[name] = agent
	r.mu.Unlock()
}

// Get returns the agent for a name.
func (r *Registry) Get(name string) (Agent, bool) {
	r.mu.RLock()
	agent, ok := r.agents[name]
	r.mu.RUnlock()
	return agent, ok
}

// StepResult pairs one plan step with its raw result.
type StepResult struct {
	Step    plan.Step `json:"step"`
	Result  any       `json:"result"`
	Pending bool      `json:"pending,omitempty"`
}

// Result is the outcome of executing a full plan.
type Result struct {
	Intent string         `json:"intent"`
	Steps  []StepResult   `json:"steps"`
	Data   map[string]any `json:"data"`
	Status string         `json:"status"`
}

// Executor runs plans against registered agents.
type Executor struct {
	agents *Registry
	tracer *trace.Logger
}

// NewExecutor creates an executor. The tracer is optional.
func NewExecutor(agents *Registry, tracer *trace.Logger) *Executor {
	if tracer == nil {
		tracer = trace.NewLogger(trace.Config{Enabled: false})
	}
	return &Executor{agents: agents, tracer: tracer}
}

// Execute runs the plan step by step, merging structured step results into
// the accumulated data map visible to subsequent steps. A step error
// propagates immediately; no partial recovery is attempted.
func (e *Executor) Execute(ctx context.Context, steps []plan.Step, intent string) (*Result, error) {
	result := &Result{
		Intent: intent,
		Steps:  make([]StepResult, 0, len(steps)),
		Data:   make(map[string]any),
	}

	for i, step := range steps {
		e.tracer.Log("execute_step", map[string]any{
			"index":  i,
			"agent":  step.Agent,
			"action": step.Action,
			"intent": intent,
		})

		stepResult, err := e.runStep(ctx, step, result.Data)
		if err != nil {
			e.tracer.Log("step_failed", map[string]any{
				"agent": step.Agent, "action": step.Action, "error": err.Error(),
			})
			return nil, fmt.Errorf("step %d (%s/%s): %w", i, step.Agent, step.Action, err)
		}

		result.Steps = append(result.Steps, stepResult)
		mergeData(result.Data, stepResult.Result)
	}

	result.Status = "completed"
	e.tracer.Log("pipeline_completed", map[string]any{
		"intent": intent, "steps": len(result.Steps),
	})
	return result, nil
}

func (e *Executor) runStep(ctx context.Context, step plan.Step, accumulated map[string]any) (StepResult, error) {
	agent, ok := e.agents.Get(step.Agent)
	if !ok {
		e.tracer.Log("agent_pending", map[string]any{"agent": step.Agent})
		return StepResult{
			Step:    step,
			Pending: true,
			Result: map[string]any{
				"status": "pending",
				"agent":  step.Agent,
				"action": step.Action,
			},
		}, nil
	}

	output, err := agent.Execute(ctx, step.Action, step.Params, copyData(accumulated))
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Step: step, Result: output}, nil
}

// mergeData folds a structured step result into the accumulated map.
// Non-map results are recorded on the step but not merged.
func mergeData(data map[string]any, result any) {
	structured, ok := result.(map[string]any)
	if !ok {
		return
	}
	for key, value := range structured {
		data[key] = value
	}
}

func copyData(data map[string]any) map[string]any {
	copied := make(map[string]any, len(data))
	for key, value := range data {
		copied[key] = value
	}
	return copied
}
