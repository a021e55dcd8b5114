// Package cmd provides the relay CLI commands.
// This file wires configuration into the running application graph.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/adalundhe/relay/core/config"
	"github.com/adalundhe/relay/core/confidence"
	"github.com/adalundhe/relay/core/consult"
	"github.com/adalundhe/relay/core/dispatch"
	"github.com/adalundhe/relay/core/intent"
	"github.com/adalundhe/relay/core/kv"
	"github.com/adalundhe/relay/core/pipeline"
	"github.com/adalundhe/relay/core/plan"
	"github.com/adalundhe/relay/core/providers"
	"github.com/adalundhe/relay/core/queue"
	"github.com/adalundhe/relay/core/trace"
	"github.com/adalundhe/relay/core/transport"
)

// app is the assembled application graph.
type app struct {
	manager    *config.Manager
	store      *kv.MemoryStore
	status     *queue.StatusStore
	transport  *transport.ChannelTransport
	engine     *queue.Engine
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// buildApp loads configuration and assembles the full request-processing
// graph: provider, classifier, planner, pipeline, queue engine, dispatcher.
func buildApp(path string) (*app, error) {
	manager := config.NewManager(path)
	if err := manager.Load(); err != nil {
		return nil, err
	}
	cfg := manager.Get()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	generator, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	conf := confidence.NewManager(confidence.DefaultConfig())
	classifier := intent.NewClassifier(generator, intent.Config{
		Model:     cfg.Intent.Model,
		CacheSize: cfg.Intent.CacheSize,
		CacheTTL:  cfg.Intent.CacheTTL,
	}, conf)
	planner := plan.NewPlanner(plan.Config{
		HighConfidence: cfg.Planner.HighConfidence,
		Volatile:       plan.DefaultConfig().Volatile,
		Domains:        plan.DefaultConfig().Domains,
		Complex:        plan.DefaultConfig().Complex,
	})

	tp := transport.NewChannelTransport(transport.ChannelTransportConfig{
		BufferSize: cfg.Transport.BufferSize,
	})
	traceCfg := trace.Config{
		MaxEntries: cfg.Trace.MaxEntries,
		Enabled:    cfg.Trace.Enabled,
	}
	agents := pipeline.NewRegistry()

	store := kv.NewMemoryStore()
	status, err := queue.NewStatusStore(queue.StatusStoreConfig{DBPath: cfg.Status.DBPath})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("status store: %w", err)
	}

	engine := queue.NewEngine(queue.EngineConfig{
		Namespace:      cfg.Queue.Namespace,
		Workers:        cfg.Queue.Workers,
		PollInterval:   cfg.Queue.PollInterval,
		HandlerTimeout: cfg.Queue.HandlerTimeout,
		RetryBaseDelay: cfg.Queue.RetryBaseDelay,
		Logger:         logger,
	}, store, status, tp)

	handler := consult.NewChatHandler(
		classifier, conf, planner, agents, traceCfg, tp,
		consult.Config{Logger: logger},
	)
	engine.RegisterHandler(dispatch.TypeUserMessage, handler)

	dispatcher := dispatch.New(engine, dispatch.Config{
		MaxRetries: cfg.Queue.MaxRetries,
		Logger:     logger,
	})

	return &app{
		manager:    manager,
		store:      store,
		status:     status,
		transport:  tp,
		engine:     engine,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

func buildProvider(cfg *config.Config) (intent.TextGenerator, error) {
	switch providers.ProviderType(cfg.Providers.Default) {
	case providers.ProviderTypeAnthropic:
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:    cfg.Providers.Anthropic.APIKey,
			Model:     cfg.Providers.Anthropic.Model,
			MaxTokens: cfg.Providers.Anthropic.MaxTokens,
			BaseURL:   cfg.Providers.Anthropic.BaseURL,
		})
	case providers.ProviderTypeOpenAI:
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:    cfg.Providers.OpenAI.APIKey,
			Model:     cfg.Providers.OpenAI.Model,
			MaxTokens: cfg.Providers.OpenAI.MaxTokens,
			BaseURL:   cfg.Providers.OpenAI.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Providers.Default)
	}
}

func (a *app) close() {
	a.engine.Stop()
	a.transport.Close()
	if err := a.status.Close(); err != nil {
		a.logger.Warn("status store close failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", "error", err)
	}
}
