package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adalundhe/relay/core/transport"
)

// =============================================================================
// Trace Logger
// =============================================================================
//
// Logger keeps a bounded ring of human-readable pipeline events. Only the
// most recent MaxEntries survive; the oldest are evicted silently. A
// disabled logger is a no-op, and an optional transport mirror streams
// entries to a live recipient for UI display.

// DefaultMaxEntries bounds the ring when the config leaves it zero.
const DefaultMaxEntries = 20

// Entry is one recorded pipeline event.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// Config configures the trace logger.
type Config struct {
	MaxEntries int
	Enabled    bool

	// Mirror, when set with MirrorRecipient, receives every entry as a live
	// delivery. Mirror failures are swallowed; tracing never fails a
	// pipeline.
	Mirror          transport.Transport
	MirrorRecipient string
}

// Logger records pipeline events in a bounded ring buffer.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	count   int
	config  Config
}

// NewLogger creates a trace logger.
func NewLogger(cfg Config) *Logger {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return &Logger{
		entries: make([]Entry, cfg.MaxEntries),
		config:  cfg,
	}
}

// Log records one event. No-ops when the logger is disabled.
func (l *Logger) Log(action string, details any) {
	if !l.config.Enabled {
		return
	}

	entry := Entry{
		Timestamp: time.Now(),
		Action:    action,
		Details:   normalizeDetails(details),
	}

	l.mu.Lock()
	index := (l.start + l.count) % len(l.entries)
	l.entries[index] = entry
	if l.count < len(l.entries) {
		l.count++
	} else {
		l.start = (l.start + 1) % len(l.entries)
	}
	l.mu.Unlock()

	l.mirror(entry)
}

// normalizeDetails coerces any payload into a structured map: maps pass
// through, strings become {message}, everything else is stringified.
func normalizeDetails(details any) map[string]any {
	switch v := details.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case string:
		return map[string]any{"message": v}
	default:
		return map[string]any{"value": fmt.Sprintf("%v", v)}
	}
}

func (l *Logger) mirror(entry Entry) {
	if l.config.Mirror == nil || l.config.MirrorRecipient == "" {
		return
	}
	payload := map[string]any{
		"type":      "trace",
		"action":    entry.Action,
		"details":   entry.Details,
		"timestamp": entry.Timestamp,
	}
	// Best effort only.
	_ = l.config.Mirror.Deliver(context.Background(), l.config.MirrorRecipient, payload)
}

// Entries returns the retained entries in chronological order.
func (l *Logger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(l.start+i)%len(l.entries)]
	}
	return out
}

// Compressed returns the last limit entries rendered as single lines for
// UI display. A non-positive limit returns everything retained.
func (l *Logger) Compressed(limit int) []string {
	entries := l.Entries()
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = formatLine(entry)
	}
	return lines
}

func formatLine(entry Entry) string {
	stamp := entry.Timestamp.Format("15:04:05.000")
	if len(entry.Details) == 0 {
		return stamp + " " + entry.Action
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return stamp + " " + entry.Action
	}
	return stamp + " " + entry.Action + " " + string(details)
}
