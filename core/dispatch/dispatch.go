package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adalundhe/relay/core/queue"
)

// =============================================================================
// Dispatcher
// =============================================================================
//
// Dispatcher sits between callers and the queue engine. It assigns a lane
// per message type from a fixed table and rejects malformed or unauthorized
// requests synchronously, so the queue only ever holds well-formed,
// already-authorized work.

// Well-known message types.
const (
	TypeStartAgent       = "start_agent"
	TypeStopAgent        = "stop_agent"
	TypeUserMessage      = "user_message"
	TypeGetThreadHistory = "get_thread_history"
)

var (
	ErrEmptyRecipient = errors.New("recipient is required")
	ErrEmptyType      = errors.New("message type is required")
	ErrUnauthorized   = errors.New("request is not authorized")
)

// Authorizer decides whether a request may be scheduled. A nil authorizer
// admits everything.
type Authorizer func(ctx context.Context, recipient, msgType string, payload map[string]any) error

// Config configures the dispatcher.
type Config struct {
	// Priorities maps message types to lanes; unlisted types fall back to
	// normal.
	Priorities map[string]queue.Priority

	// MaxRetries overrides the per-item retry limit on every dispatched
	// item; 0 keeps the item default.
	MaxRetries int

	Authorizer Authorizer
	Logger     *slog.Logger
}

// DefaultPriorities returns the fixed type-to-lane policy: stop requests
// preempt everything, start requests beat chat traffic, read-only history
// queries yield to all of it.
func DefaultPriorities() map[string]queue.Priority {
	return map[string]queue.Priority{
		TypeStopAgent:        queue.PriorityCritical,
		TypeStartAgent:       queue.PriorityHigh,
		TypeUserMessage:      queue.PriorityNormal,
		TypeGetThreadHistory: queue.PriorityLow,
	}
}

// Dispatcher validates and enqueues requests.
type Dispatcher struct {
	engine     *queue.Engine
	priorities map[string]queue.Priority
	maxRetries int
	authorize  Authorizer
	log        *slog.Logger
}

// New creates a dispatcher over the given engine.
func New(engine *queue.Engine, cfg Config) *Dispatcher {
	if cfg.Priorities == nil {
		cfg.Priorities = DefaultPriorities()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		engine:     engine,
		priorities: cfg.Priorities,
		maxRetries: cfg.MaxRetries,
		authorize:  cfg.Authorizer,
		log:        cfg.Logger.With("component", "dispatch"),
	}
}

// Dispatch validates the request, assigns its priority, and enqueues it.
// Returns the scheduled item so callers can track its id.
func (d *Dispatcher) Dispatch(ctx context.Context, recipient, msgType string, payload map[string]any) (*queue.Item, error) {
	if recipient == "" {
		return nil, ErrEmptyRecipient
	}
	if msgType == "" {
		return nil, ErrEmptyType
	}

	if d.authorize != nil {
		if err := d.authorize(ctx, recipient, msgType, payload); err != nil {
			d.log.Warn("request rejected", "recipient", recipient, "type", msgType, "error", err)
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, err)
		}
	}

	item := queue.NewItem(recipient, msgType, payload, d.priorityFor(msgType))
	if d.maxRetries > 0 {
		item.MaxRetries = d.maxRetries
	}
	if err := d.engine.Enqueue(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (d *Dispatcher) priorityFor(msgType string) queue.Priority {
	if priority, ok := d.priorities[msgType]; ok {
		return priority
	}
	return queue.PriorityNormal
}
