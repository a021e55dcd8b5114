package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/ristretto"
	_ "modernc.org/sqlite"
)

// =============================================================================
// Status Store - Tiered Work Item Status Tracking
// =============================================================================
//
// StatusStore tracks per-item status records in two tiers:
// - Hot (L1): ristretto cache for fast reads of recent/active items
// - Durable (L2): SQLite, written through on every update
//
// Aggregate counts for engine stats are derived from the durable tier, so
// they survive hot-cache eviction and process restarts.

const (
	// DefaultStatusStorePath is the default SQLite database location.
	DefaultStatusStorePath = ".relay/item_status.db"

	defaultNumCounters = 1e5
	defaultMaxCost     = 1e7
	defaultBufferItems = 64
)

// StatusRecord is the persisted tracking metadata for a work item. The full
// payload is not stored, only what stats and diagnostics need.
type StatusRecord struct {
	ID          string     `json:"id"`
	Recipient   string     `json:"recipient"`
	Type        string     `json:"type"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func recordFromItem(item *Item) *StatusRecord {
	return &StatusRecord{
		ID:          item.ID,
		Recipient:   item.Recipient,
		Type:        item.Type,
		Priority:    item.Priority,
		Status:      item.Status,
		RetryCount:  item.RetryCount,
		MaxRetries:  item.MaxRetries,
		LastError:   item.LastError,
		CreatedAt:   item.CreatedAt,
		StartedAt:   item.StartedAt,
		CompletedAt: item.CompletedAt,
	}
}

func (r *StatusRecord) cost() int64 {
	cost := int64(160)
	cost += int64(len(r.ID))
	cost += int64(len(r.Recipient))
	cost += int64(len(r.Type))
	cost += int64(len(r.LastError))
	return cost
}

// StatusStoreConfig configures the status store.
type StatusStoreConfig struct {
	// DBPath is the SQLite path; empty means DefaultStatusStorePath and
	// ":memory:" keeps the durable tier in memory.
	DBPath string

	NumCounters int64
	MaxCost     int64
	BufferItems int64

	// HotTTL bounds how long records stay in the hot tier. Zero disables
	// hot-tier expiry.
	HotTTL time.Duration
}

// DefaultStatusStoreConfig returns sensible defaults.
func DefaultStatusStoreConfig() StatusStoreConfig {
	return StatusStoreConfig{
		DBPath:      DefaultStatusStorePath,
		NumCounters: int64(defaultNumCounters),
		MaxCost:     int64(defaultMaxCost),
		BufferItems: int64(defaultBufferItems),
		HotTTL:      time.Hour,
	}
}

// StatusStore provides tiered work item status storage.
type StatusStore struct {
	cache  *ristretto.Cache
	db     *sql.DB
	config StatusStoreConfig
}

// NewStatusStore opens the tiered store, creating the SQLite schema if
// needed.
func NewStatusStore(cfg StatusStoreConfig) (*StatusStore, error) {
	cfg = applyStatusStoreDefaults(cfg)

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("status cache: %w", err)
	}

	db, err := openStatusDB(cfg.DBPath)
	if err != nil {
		cache.Close()
		return nil, err
	}

	return &StatusStore{cache: cache, db: db, config: cfg}, nil
}

func applyStatusStoreDefaults(cfg StatusStoreConfig) StatusStoreConfig {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultStatusStorePath
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = int64(defaultNumCounters)
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = int64(defaultMaxCost)
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = int64(defaultBufferItems)
	}
	return cfg
}

func openStatusDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("status db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open status db: %w", err)
	}
	// Shared in-memory connections disappear per-conn; a single connection
	// also sidesteps SQLite writer contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(statusSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("status schema: %w", err)
	}
	return db, nil
}

const statusSchema = `
CREATE TABLE IF NOT EXISTS item_status (
	id           TEXT PRIMARY KEY,
	recipient    TEXT NOT NULL,
	type         TEXT NOT NULL,
	priority     INTEGER NOT NULL,
	status       TEXT NOT NULL,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	max_retries  INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT,
	created_at   TIMESTAMP NOT NULL,
	started_at   TIMESTAMP,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_item_status_status ON item_status(status);
`

// Put writes the item's current status through both tiers.
func (s *StatusStore) Put(ctx context.Context, item *Item) error {
	record := recordFromItem(item)

	s.cache.SetWithTTL(record.ID, record, record.cost(), s.config.HotTTL)
	// Set buffers are async; Wait makes the hot tier read-your-write.
	s.cache.Wait()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_status
			(id, recipient, type, priority, status, retry_count, max_retries, last_error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			retry_count = excluded.retry_count,
			last_error = excluded.last_error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		record.ID, record.Recipient, record.Type, int(record.Priority),
		string(record.Status), record.RetryCount, record.MaxRetries,
		record.LastError, record.CreatedAt, record.StartedAt, record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("persist status %s: %w", record.ID, err)
	}
	return nil
}

// Get returns the status record for an item id, hot tier first.
func (s *StatusStore) Get(ctx context.Context, id string) (*StatusRecord, bool, error) {
	if cached, ok := s.cache.Get(id); ok {
		if record, ok := cached.(*StatusRecord); ok {
			return record, true, nil
		}
	}
	return s.getCold(ctx, id)
}

func (s *StatusStore) getCold(ctx context.Context, id string) (*StatusRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, recipient, type, priority, status, retry_count, max_retries,
		       COALESCE(last_error, ''), created_at, started_at, completed_at
		FROM item_status WHERE id = ?`, id)

	var record StatusRecord
	var priority int
	var status string
	err := row.Scan(&record.ID, &record.Recipient, &record.Type, &priority,
		&status, &record.RetryCount, &record.MaxRetries, &record.LastError,
		&record.CreatedAt, &record.StartedAt, &record.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read status %s: %w", id, err)
	}

	record.Priority = Priority(priority)
	record.Status = Status(status)
	return &record, true, nil
}

// Counts returns the number of records per status from the durable tier.
func (s *StatusStore) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM item_status GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// Close releases both tiers.
func (s *StatusStore) Close() error {
	s.cache.Close()
	return s.db.Close()
}
