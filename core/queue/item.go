package queue

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Item - Work Item Envelope
// =============================================================================
//
// Item is the unit of schedulable work submitted to the queue engine. It
// carries routing (recipient, type tag), an arbitrary structured payload,
// a priority lane assignment, and retry/status bookkeeping.
//
// Status transitions are monotonic except for the retrying->processing
// cycle, which repeats at most MaxRetries times. Once an item is completed
// or permanently failed its status never changes again. While enqueued the
// engine owns the canonical copy; once dequeued, the owning worker is the
// sole writer of status and retry count.

// DefaultMaxRetries is applied when an item does not set its own limit.
const DefaultMaxRetries = 3

// Priority selects one of the four FIFO lanes. Higher values preempt lower
// ones: no low-priority item is served while any higher lane is non-empty.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// numPriorities is the lane count.
const numPriorities = 4

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Status represents the lifecycle state of a work item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true if this is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Item is a unit of schedulable work.
type Item struct {
	ID        string         `json:"id"`
	Recipient string         `json:"recipient"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`

	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`

	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewItem creates a pending work item with a generated UUID.
func NewItem(recipient, itemType string, payload map[string]any, priority Priority) *Item {
	return &Item{
		ID:         uuid.New().String(),
		Recipient:  recipient,
		Type:       itemType,
		Payload:    payload,
		Priority:   normalizePriority(priority),
		Status:     StatusPending,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  time.Now(),
	}
}

func normalizePriority(p Priority) Priority {
	if p < PriorityLow {
		return PriorityLow
	}
	if p > PriorityCritical {
		return PriorityCritical
	}
	return p
}

// ValidationError describes why an item was rejected before enqueue.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the item is well-formed enough to schedule.
func (i *Item) Validate() error {
	if i.ID == "" {
		return &ValidationError{Field: "id", Message: "required"}
	}
	if i.Type == "" {
		return &ValidationError{Field: "type", Message: "required"}
	}
	if i.Recipient == "" {
		return &ValidationError{Field: "recipient", Message: "required"}
	}
	if i.RetryCount < 0 {
		return &ValidationError{Field: "retry_count", Message: "cannot be negative"}
	}
	return nil
}

// MarkProcessing transitions status to processing and records the start time.
func (i *Item) MarkProcessing() {
	i.Status = StatusProcessing
	now := time.Now()
	i.StartedAt = &now
}

// MarkCompleted transitions status to completed.
func (i *Item) MarkCompleted() {
	i.Status = StatusCompleted
	now := time.Now()
	i.CompletedAt = &now
}

// MarkFailed transitions status to permanently failed with the final error.
func (i *Item) MarkFailed(errText string) {
	i.Status = StatusFailed
	i.LastError = errText
	now := time.Now()
	i.CompletedAt = &now
}

// MarkRetrying increments the retry count and records the interim error.
func (i *Item) MarkRetrying(errText string) {
	i.Status = StatusRetrying
	i.RetryCount++
	i.LastError = errText
}

// CanRetry returns true if another delivery attempt is allowed.
func (i *Item) CanRetry() bool {
	if i.Status.IsTerminal() {
		return false
	}
	return i.RetryCount < i.maxRetries()
}

func (i *Item) maxRetries() int {
	if i.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return i.MaxRetries
}
