package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Transport delivers payloads to recipients. The queue engine and the trace
// mirror consume this contract; the concrete per-connection transport layer
// (sockets, framing) lives outside this module.
type Transport interface {
	Deliver(ctx context.Context, recipient string, payload map[string]any) error
}

var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrNoSubscriber    = errors.New("no subscriber for recipient")
)

// Delivery is one payload handed to a subscriber.
type Delivery struct {
	Recipient string
	Payload   map[string]any
	SentAt    time.Time
}

// =============================================================================
// ChannelTransport
// =============================================================================
//
// ChannelTransport is the in-process implementation: per-recipient buffered
// channels with non-blocking publish. A slow subscriber drops deliveries
// rather than stalling workers.

type ChannelTransport struct {
	mu      sync.RWMutex
	subs    map[string][]*subscription
	buffer  int
	closed  atomic.Bool
	dropped atomic.Int64
}

type subscription struct {
	ch     chan Delivery
	active atomic.Bool
}

// ChannelTransportConfig configures the in-process transport.
type ChannelTransportConfig struct {
	BufferSize int
}

// DefaultChannelTransportConfig returns sensible defaults.
func DefaultChannelTransportConfig() ChannelTransportConfig {
	return ChannelTransportConfig{BufferSize: 256}
}

// NewChannelTransport creates an in-process transport.
func NewChannelTransport(cfg ChannelTransportConfig) *ChannelTransport {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &ChannelTransport{
		subs:   make(map[string][]*subscription),
		buffer: cfg.BufferSize,
	}
}

// Subscribe returns a channel of deliveries for a recipient and a cancel
// function. Cancelling marks the subscription inactive; the channel is
// drained by garbage collection, never closed under a publisher.
func (t *ChannelTransport) Subscribe(recipient string) (<-chan Delivery, func()) {
	sub := &subscription{ch: make(chan Delivery, t.buffer)}
	sub.active.Store(true)

	t.mu.Lock()
	t.subs[recipient] = append(t.subs[recipient], sub)
	t.mu.Unlock()

	cancel := func() {
		sub.active.Store(false)
	}
	return sub.ch, cancel
}

// Deliver publishes a payload to all active subscribers for the recipient.
// Returns ErrNoSubscriber when nobody is listening so callers can log the
// miss; a full subscriber buffer drops silently.
func (t *ChannelTransport) Deliver(_ context.Context, recipient string, payload map[string]any) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.RLock()
	subs := append([]*subscription(nil), t.subs[recipient]...)
	t.mu.RUnlock()

	delivered := false
	delivery := Delivery{Recipient: recipient, Payload: payload, SentAt: time.Now()}
	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		select {
		case sub.ch <- delivery:
			delivered = true
		default:
			t.dropped.Add(1)
		}
	}

	if !delivered {
		return ErrNoSubscriber
	}
	return nil
}

// Dropped returns the count of deliveries dropped on full buffers.
func (t *ChannelTransport) Dropped() int64 {
	return t.dropped.Load()
}

// Close stops accepting deliveries.
func (t *ChannelTransport) Close() error {
	if t.closed.Swap(true) {
		return ErrTransportClosed
	}
	return nil
}
