package consult_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adalundhe/relay/core/confidence"
	"github.com/adalundhe/relay/core/consult"
	"github.com/adalundhe/relay/core/intent"
	"github.com/adalundhe/relay/core/pipeline"
	"github.com/adalundhe/relay/core/plan"
	"github.com/adalundhe/relay/core/trace"
	"github.com/adalundhe/relay/core/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	reply string
	err   error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt, modelHint string) (string, error) {
	return g.reply, g.err
}

func newHandler(t *testing.T, gen intent.TextGenerator, agents *pipeline.Registry, tp transport.Transport) *consult.ChatHandler {
	t.Helper()
	conf := confidence.NewManager(confidence.DefaultConfig())
	classifier := intent.NewClassifier(gen, intent.Config{CacheSize: 0}, conf)
	planner := plan.NewPlanner(plan.DefaultConfig())
	if agents == nil {
		agents = pipeline.NewRegistry()
	}
	traceCfg := trace.Config{Enabled: true}
	return consult.NewChatHandler(classifier, conf, planner, agents, traceCfg, tp, consult.Config{})
}

func TestChatHandler_VolatileIntentResearchesDespiteHighConfidence(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"intent": "pricing", "confidence": 0.95}`}
	tp := transport.NewChannelTransport(transport.DefaultChannelTransportConfig())
	deliveries, cancel := tp.Subscribe("session-1")
	defer cancel()

	handler := newHandler(t, gen, nil, tp)
	err := handler.Handle(context.Background(), "session-1", map[string]any{
		"text": "What is the current GPU pricing?",
	})
	require.NoError(t, err)

	var delivery transport.Delivery
	select {
	case delivery = <-deliveries:
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}

	assert.Equal(t, "consult_result", delivery.Payload["type"])
	assert.Equal(t, "pricing", delivery.Payload["intent"])

	steps, ok := delivery.Payload["steps"].([]map[string]any)
	require.True(t, ok)

	// Pricing is volatile, so research runs even at 0.95 confidence.
	var researched bool
	for _, step := range steps {
		if step["agent"] == plan.AgentResearcher && step["action"] == "research" {
			researched = true
		}
	}
	assert.True(t, researched)

	// Validation always closes the plan.
	last := steps[len(steps)-1]
	assert.Equal(t, plan.AgentValidator, last["agent"])
}

func TestChatHandler_MissingTextFails(t *testing.T) {
	handler := newHandler(t, &scriptedGenerator{}, nil, nil)

	err := handler.Handle(context.Background(), "session-1", map[string]any{})
	assert.ErrorIs(t, err, consult.ErrMissingText)

	err = handler.Handle(context.Background(), "session-1", map[string]any{"text": ""})
	assert.ErrorIs(t, err, consult.ErrMissingText)
}

func TestChatHandler_GeneratorFailurePropagates(t *testing.T) {
	boom := errors.New("provider unreachable")
	handler := newHandler(t, &scriptedGenerator{err: boom}, nil, nil)

	err := handler.Handle(context.Background(), "session-1", map[string]any{"text": "hello"})
	assert.ErrorIs(t, err, boom)
}

func TestChatHandler_UnparseableReplyFallsBackToGeneral(t *testing.T) {
	gen := &scriptedGenerator{reply: "I am not JSON at all"}
	tp := transport.NewChannelTransport(transport.DefaultChannelTransportConfig())
	deliveries, cancel := tp.Subscribe("session-1")
	defer cancel()

	handler := newHandler(t, gen, nil, tp)
	err := handler.Handle(context.Background(), "session-1", map[string]any{"text": "hello"})
	require.NoError(t, err)

	delivery := <-deliveries
	assert.Equal(t, intent.FallbackIntent, delivery.Payload["intent"])
	assert.Equal(t, true, delivery.Payload["fallback"])

	// Fallback confidence sits at the general threshold, so no escalation.
	assert.Equal(t, false, delivery.Payload["escalated"])
}

func TestChatHandler_LowConfidenceDomainIntentEscalates(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"intent": "legal", "confidence": 0.4}`}
	tp := transport.NewChannelTransport(transport.DefaultChannelTransportConfig())
	deliveries, cancel := tp.Subscribe("session-1")
	defer cancel()

	handler := newHandler(t, gen, nil, tp)
	err := handler.Handle(context.Background(), "session-1", map[string]any{"text": "can I break this lease?"})
	require.NoError(t, err)

	delivery := <-deliveries
	assert.Equal(t, true, delivery.Payload["escalated"])
	assert.Equal(t, 0.9, delivery.Payload["quality_floor"])

	steps, ok := delivery.Payload["steps"].([]map[string]any)
	require.True(t, ok)

	var agents []string
	for _, step := range steps {
		agents = append(agents, step["agent"].(string))
	}
	assert.Equal(t, []string{plan.AgentResearcher, plan.AgentDomainExpert, plan.AgentValidator}, agents)
}

func TestChatHandler_StepErrorPropagates(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"intent": "general", "confidence": 0.2}`}
	boom := errors.New("research backend down")

	agents := pipeline.NewRegistry()
	agents.Register(plan.AgentResearcher, pipeline.AgentFunc(
		func(ctx context.Context, action string, params, input map[string]any) (any, error) {
			return nil, boom
		},
	))

	handler := newHandler(t, gen, agents, nil)
	err := handler.Handle(context.Background(), "session-1", map[string]any{"text": "hello"})
	assert.ErrorIs(t, err, boom)
}

func TestChatHandler_TraceIsPerRequest(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"intent": "general", "confidence": 0.9}`}
	tp := transport.NewChannelTransport(transport.DefaultChannelTransportConfig())
	first, cancelFirst := tp.Subscribe("session-a")
	defer cancelFirst()
	second, cancelSecond := tp.Subscribe("session-b")
	defer cancelSecond()

	handler := newHandler(t, gen, nil, tp)
	require.NoError(t, handler.Handle(context.Background(), "session-a", map[string]any{"text": "hello"}))
	require.NoError(t, handler.Handle(context.Background(), "session-b", map[string]any{"text": "hello"}))

	<-first
	delivery := <-second

	lines, ok := delivery.Payload["trace"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.NotContains(t, line, "session-a")
	}
	assert.Contains(t, lines[0], "session-b")
}

func TestChatHandler_NoSubscriberIsNotAFailure(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"intent": "general", "confidence": 0.9}`}
	tp := transport.NewChannelTransport(transport.DefaultChannelTransportConfig())

	handler := newHandler(t, gen, nil, tp)
	err := handler.Handle(context.Background(), "nobody-home", map[string]any{"text": "hello"})
	assert.NoError(t, err)
}
