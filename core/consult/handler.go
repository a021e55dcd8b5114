package consult

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adalundhe/relay/core/confidence"
	"github.com/adalundhe/relay/core/intent"
	"github.com/adalundhe/relay/core/pipeline"
	"github.com/adalundhe/relay/core/plan"
	"github.com/adalundhe/relay/core/trace"
	"github.com/adalundhe/relay/core/transport"
)

// =============================================================================
// Consultation Handler
// =============================================================================
//
// ChatHandler is the user_message handler: it classifies the request text,
// consults the confidence tables, generates an execution plan, and runs it
// through the pipeline executor. The finished result is delivered back to
// the requesting recipient over the transport. Errors propagate to the queue
// engine, which owns retry and failure-notification policy.
//
// Each request gets its own trace logger so the trace attached to a result
// only ever describes that request, no matter how many workers run
// concurrently.

var (
	ErrMissingText = errors.New("payload has no request text")
)

// Config configures the consultation handler.
type Config struct {
	// TraceLimit bounds the compressed trace lines attached to results.
	TraceLimit int

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TraceLimit: 10,
		Logger:     slog.Default(),
	}
}

func applyDefaults(cfg Config) Config {
	if cfg.TraceLimit <= 0 {
		cfg.TraceLimit = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// ChatHandler processes consultation requests end to end.
type ChatHandler struct {
	classifier *intent.Classifier
	conf       *confidence.Manager
	planner    *plan.Planner
	agents     *pipeline.Registry
	traceCfg   trace.Config
	transport  transport.Transport
	config     Config
}

// NewChatHandler wires the consultation stages together. The traceCfg is a
// template instantiated per request; its zero value disables tracing. The
// transport is optional; nil skips result delivery.
func NewChatHandler(
	classifier *intent.Classifier,
	conf *confidence.Manager,
	planner *plan.Planner,
	agents *pipeline.Registry,
	traceCfg trace.Config,
	tp transport.Transport,
	cfg Config,
) *ChatHandler {
	return &ChatHandler{
		classifier: classifier,
		conf:       conf,
		planner:    planner,
		agents:     agents,
		traceCfg:   traceCfg,
		transport:  tp,
		config:     applyDefaults(cfg),
	}
}

// Handle runs one consultation request. The payload must carry the request
// text under "text".
func (h *ChatHandler) Handle(ctx context.Context, recipient string, payload map[string]any) error {
	text, ok := payload["text"].(string)
	if !ok || text == "" {
		return ErrMissingText
	}

	tracer := trace.NewLogger(h.traceCfg)
	tracer.Log("request_received", map[string]any{
		"recipient": recipient,
		"length":    len(text),
	})

	outcome, err := h.classifier.Classify(ctx, text)
	if err != nil {
		return fmt.Errorf("classify request: %w", err)
	}

	escalate := h.conf.ShouldEscalate(outcome.Confidence, outcome.Intent)
	tracer.Log("classified", map[string]any{
		"intent":     outcome.Intent,
		"confidence": outcome.Confidence,
		"fallback":   outcome.Fallback,
		"escalate":   escalate,
	})
	h.config.Logger.Debug(
		"request classified",
		slog.String("recipient", recipient),
		slog.String("intent", outcome.Intent),
		slog.Float64("confidence", outcome.Confidence),
		slog.Bool("escalate", escalate),
	)

	steps := h.planner.GeneratePlan(outcome.Intent, outcome.Confidence)
	tracer.Log("plan_generated", map[string]any{
		"intent": outcome.Intent,
		"steps":  len(steps),
	})

	executor := pipeline.NewExecutor(h.agents, tracer)
	result, err := executor.Execute(ctx, steps, outcome.Intent)
	if err != nil {
		return fmt.Errorf("execute plan: %w", err)
	}

	return h.deliver(ctx, recipient, outcome, escalate, result, tracer)
}

func (h *ChatHandler) deliver(
	ctx context.Context,
	recipient string,
	outcome intent.Outcome,
	escalate bool,
	result *pipeline.Result,
	tracer *trace.Logger,
) error {
	if h.transport == nil {
		return nil
	}

	payload := map[string]any{
		"type":       "consult_result",
		"intent":     outcome.Intent,
		"confidence": outcome.Confidence,
		"fallback":   outcome.Fallback,
		"escalated":  escalate,
		"status":     result.Status,
		"steps":      stepSummaries(result.Steps),
		"data":       result.Data,
		"trace":      tracer.Compressed(h.config.TraceLimit),
	}
	if escalate {
		payload["quality_floor"] = h.conf.QualityRequirement(outcome.Intent)
	}

	if err := h.transport.Deliver(ctx, recipient, payload); err != nil {
		// A missing subscriber is not a processing failure; the result is
		// still recorded through the queue's status store.
		if errors.Is(err, transport.ErrNoSubscriber) {
			h.config.Logger.Warn(
				"no subscriber for consultation result",
				slog.String("recipient", recipient),
			)
			return nil
		}
		return fmt.Errorf("deliver result: %w", err)
	}
	return nil
}

func stepSummaries(steps []pipeline.StepResult) []map[string]any {
	out := make([]map[string]any, len(steps))
	for i, sr := range steps {
		out[i] = map[string]any{
			"agent":   sr.Step.Agent,
			"action":  sr.Step.Action,
			"pending": sr.Pending,
			"result":  sr.Result,
		}
	}
	return out
}
