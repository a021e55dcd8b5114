package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adalundhe/relay/core/kv"
	"github.com/adalundhe/relay/core/transport"
)

// =============================================================================
// Engine - Priority Queue Engine
// =============================================================================
//
// Engine owns four priority lanes in the key-value store, a fixed worker
// pool, retry scheduling, and status persistence. Delivery is at-least-once:
// an item is either handled to completion or recorded as permanently failed,
// never silently dropped. Dequeue order is strict priority precedence with
// FIFO inside each lane; sustained high-priority load can starve low lanes,
// which is accepted so stop/start requests preempt ordinary chat traffic.

var (
	ErrEngineClosed   = errors.New("engine is stopped")
	ErrNoHandler      = errors.New("no handler registered for item type")
	ErrHandlerTimeout = errors.New("handler timed out")
)

// EngineConfig configures the queue engine.
type EngineConfig struct {
	// Namespace prefixes every store key, isolating engines sharing a store.
	Namespace string

	// Workers is the default pool size when Start is called with 0.
	Workers int

	// PollInterval is how long an idle worker sleeps between polls.
	PollInterval time.Duration

	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration

	// RetryBaseDelay is multiplied by the retry count for linear backoff.
	RetryBaseDelay time.Duration

	// RetryRecordGrace extends the TTL on mirrored retry records past the
	// scheduled delay so operators can still see them briefly after due time.
	RetryRecordGrace time.Duration

	// StoreBackoff is how long a worker backs off after a store error.
	StoreBackoff time.Duration

	Logger *slog.Logger
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Namespace:        "relay",
		Workers:          4,
		PollInterval:     100 * time.Millisecond,
		HandlerTimeout:   30 * time.Second,
		RetryBaseDelay:   5 * time.Second,
		RetryRecordGrace: time.Minute,
		StoreBackoff:     time.Second,
	}
}

func applyEngineDefaults(cfg EngineConfig) EngineConfig {
	def := DefaultEngineConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.RetryRecordGrace <= 0 {
		cfg.RetryRecordGrace = def.RetryRecordGrace
	}
	if cfg.StoreBackoff <= 0 {
		cfg.StoreBackoff = def.StoreBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Engine schedules and delivers work items.
type Engine struct {
	config   EngineConfig
	store    kv.Store
	status   *StatusStore
	registry *Registry
	notifier transport.Transport
	retries  *delayQueue
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running atomic.Bool

	itemsSubmitted atomic.Int64
	itemsCompleted atomic.Int64
	itemsRetried   atomic.Int64
	itemsFailed    atomic.Int64
	processing     atomic.Int64
}

// NewEngine creates an engine over the given store and status store. The
// notifier is optional; when nil, permanent-failure notifications are
// skipped.
func NewEngine(cfg EngineConfig, store kv.Store, status *StatusStore, notifier transport.Transport) *Engine {
	cfg = applyEngineDefaults(cfg)
	return &Engine{
		config:   cfg,
		store:    store,
		status:   status,
		registry: NewRegistry(),
		notifier: notifier,
		retries:  newDelayQueue(),
		log:      cfg.Logger.With("component", "queue"),
	}
}

// RegisterHandler associates a type tag with a handler. Re-registering
// overwrites silently.
func (e *Engine) RegisterHandler(itemType string, handler Handler) {
	e.registry.Register(itemType, handler)
}

// HandlerTypes returns the item types that have a registered handler.
func (e *Engine) HandlerTypes() []string {
	return e.registry.Types()
}

// Enqueue validates the item, appends it to the lane matching its priority,
// and persists its pending status. It never blocks waiting on a worker.
func (e *Engine) Enqueue(ctx context.Context, item *Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", item.ID, err)
	}

	if err := e.store.PushTail(ctx, e.laneKey(item.Priority), payload); err != nil {
		return fmt.Errorf("enqueue %s: %w", item.ID, err)
	}

	e.itemsSubmitted.Add(1)
	if err := e.status.Put(ctx, item); err != nil {
		e.log.Warn("status persist failed on enqueue", "item", item.ID, "error", err)
	}

	e.log.Debug("item enqueued", "item", item.ID, "type", item.Type, "priority", item.Priority.String())
	return nil
}

// Start launches workerCount workers; 0 uses the configured default.
// Calling Start on a running engine is a no-op that logs a warning.
func (e *Engine) Start(workerCount int) {
	if e.running.Swap(true) {
		e.log.Warn("engine already running, start ignored")
		return
	}

	if workerCount <= 0 {
		workerCount = e.config.Workers
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	for i := 0; i < workerCount; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.log.Info("engine started", "workers", workerCount)
}

// Stop signals all workers to stop after their current item and awaits
// their termination.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}

	e.cancel()
	e.wg.Wait()
	e.log.Info("engine stopped")
}

// =============================================================================
// Worker Loop
// =============================================================================

func (e *Engine) worker(id int) {
	defer e.wg.Done()
	log := e.log.With("worker", id)

	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		item, err := e.next(e.ctx)
		if err != nil {
			log.Error("dequeue failed, backing off", "error", err)
			if !e.sleep(e.config.StoreBackoff) {
				return
			}
			continue
		}
		if item == nil {
			if !e.sleep(e.config.PollInterval) {
				return
			}
			continue
		}

		e.process(item, log)
	}
}

// next pops the head of the first non-empty lane, highest priority first.
// When all lanes are empty it resurrects the oldest due retry instead.
func (e *Engine) next(ctx context.Context) (*Item, error) {
	for priority := PriorityCritical; priority >= PriorityLow; priority-- {
		payload, ok, err := e.store.PopHead(ctx, e.laneKey(priority))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		var item Item
		if err := json.Unmarshal(payload, &item); err != nil {
			// A corrupt lane entry cannot be retried or attributed; drop it
			// loudly rather than wedging the lane.
			e.log.Error("dropping undecodable lane entry", "lane", priority.String(), "error", err)
			continue
		}
		return &item, nil
	}

	return e.nextRetry(ctx), nil
}

func (e *Engine) nextRetry(ctx context.Context) *Item {
	item := e.retries.PopDue()
	if item == nil {
		return nil
	}
	if err := e.store.Delete(ctx, e.retryKey(item.ID)); err != nil {
		e.log.Warn("retry record cleanup failed", "item", item.ID, "error", err)
	}
	return item
}

func (e *Engine) process(item *Item, log *slog.Logger) {
	e.processing.Add(1)
	defer e.processing.Add(-1)

	item.MarkProcessing()
	e.persistStatus(item)

	handler, ok := e.registry.Get(item.Type)
	if !ok {
		// Retrying cannot fix a missing registration.
		log.Error("no handler for item type", "item", item.ID, "type", item.Type)
		e.fail(item, ErrNoHandler)
		return
	}

	err := e.invoke(handler, item)
	if err == nil {
		item.MarkCompleted()
		e.persistStatus(item)
		e.itemsCompleted.Add(1)
		log.Debug("item completed", "item", item.ID, "type", item.Type)
		return
	}

	if item.CanRetry() {
		e.scheduleRetry(item, err, log)
		return
	}
	log.Warn("item exhausted retries", "item", item.ID, "type", item.Type, "error", err)
	e.fail(item, err)
}

// invoke runs the handler with a bounded timeout. The timeout context is
// detached from the engine context so Stop never cancels an in-flight item.
func (e *Engine) invoke(handler Handler, item *Item) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), e.config.HandlerTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.safeHandle(ctx, handler, item)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", ErrHandlerTimeout, e.config.HandlerTimeout)
	}
}

func (e *Engine) safeHandle(ctx context.Context, handler Handler, item *Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, item.Recipient, item.Payload)
}

func (e *Engine) scheduleRetry(item *Item, cause error, log *slog.Logger) {
	item.MarkRetrying(cause.Error())

	delay := e.config.RetryBaseDelay * time.Duration(item.RetryCount)
	readyAt := time.Now().Add(delay)
	e.retries.Schedule(item, readyAt)
	e.mirrorRetryRecord(item, delay)
	e.persistStatus(item)
	e.itemsRetried.Add(1)

	log.Info("item scheduled for retry",
		"item", item.ID, "type", item.Type,
		"attempt", item.RetryCount, "delay", delay, "error", cause)
}

// mirrorRetryRecord writes a TTL'd copy of the pending retry into the store
// for observability. Scheduling itself lives on the in-process delay queue.
func (e *Engine) mirrorRetryRecord(item *Item, delay time.Duration) {
	payload, err := json.Marshal(item)
	if err != nil {
		return
	}
	ttl := delay + e.config.RetryRecordGrace
	if err := e.store.Set(context.WithoutCancel(e.ctx), e.retryKey(item.ID), payload, ttl); err != nil {
		e.log.Warn("retry record mirror failed", "item", item.ID, "error", err)
	}
}

func (e *Engine) fail(item *Item, cause error) {
	item.MarkFailed(cause.Error())
	e.persistStatus(item)
	e.itemsFailed.Add(1)
	e.notifyFailure(item)
}

// notifyFailure sends one best-effort notification to the item's recipient.
func (e *Engine) notifyFailure(item *Item) {
	if e.notifier == nil {
		return
	}

	payload := map[string]any{
		"type":      "delivery_failure",
		"item_id":   item.ID,
		"item_type": item.Type,
		"error":     item.LastError,
	}
	if err := e.notifier.Deliver(context.WithoutCancel(e.ctx), item.Recipient, payload); err != nil {
		e.log.Warn("failure notification not delivered", "item", item.ID, "error", err)
	}
}

func (e *Engine) persistStatus(item *Item) {
	if err := e.status.Put(context.WithoutCancel(e.ctx), item); err != nil {
		e.log.Warn("status persist failed", "item", item.ID, "error", err)
	}
}

// sleep waits for d or engine shutdown, returning false on shutdown.
func (e *Engine) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *Engine) laneKey(p Priority) string {
	return e.config.Namespace + ":lane:" + p.String()
}

func (e *Engine) retryKey(id string) string {
	return e.config.Namespace + ":retry:" + id
}

// =============================================================================
// Stats
// =============================================================================

// Stats is a point-in-time snapshot of engine state.
type Stats struct {
	Lanes          map[string]int `json:"lanes"`
	PendingRetries int            `json:"pending_retries"`
	Processing     int64          `json:"processing"`
	Submitted      int64          `json:"submitted"`
	Completed      int64          `json:"completed"`
	Failed         int64          `json:"failed"`
	Retried        int64          `json:"retried"`
	StatusCounts   map[string]int `json:"status_counts"`
	Running        bool           `json:"running"`
}

// Stats reports per-lane waiting counts plus aggregates derived from the
// persisted status records.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Lanes:          make(map[string]int, numPriorities),
		PendingRetries: e.retries.Len(),
		Processing:     e.processing.Load(),
		Submitted:      e.itemsSubmitted.Load(),
		Completed:      e.itemsCompleted.Load(),
		Failed:         e.itemsFailed.Load(),
		Retried:        e.itemsRetried.Load(),
		Running:        e.running.Load(),
	}

	for priority := PriorityLow; priority <= PriorityCritical; priority++ {
		count, err := e.store.Len(ctx, e.laneKey(priority))
		if err != nil {
			return stats, fmt.Errorf("lane stats: %w", err)
		}
		stats.Lanes[priority.String()] = count
	}

	counts, err := e.status.Counts(ctx)
	if err != nil {
		return stats, fmt.Errorf("status stats: %w", err)
	}
	stats.StatusCounts = make(map[string]int, len(counts))
	for status, count := range counts {
		stats.StatusCounts[string(status)] = count
	}
	return stats, nil
}
