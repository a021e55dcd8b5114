package confidence

import "time"

// =============================================================================
// Confidence Manager
// =============================================================================
//
// Manager is a pure lookup component: per-intent confidence thresholds,
// cache lifetimes for a caching collaborator, and answer-quality floors.
// It makes no external calls and holds no mutable state; the tables are
// built once at startup and passed in by the constructor.

// Standard threshold levels.
const (
	ThresholdHigh   = 0.85
	ThresholdMedium = 0.65
	ThresholdLow    = 0.50
)

// Config holds the per-intent tables. Zero-value fields fall back to the
// defaults in DefaultConfig.
type Config struct {
	// Thresholds is the minimum acceptable classification confidence per
	// intent.
	Thresholds map[string]float64

	// CacheTTLs is the per-intent cache lifetime for cached classifications
	// and answers. Volatile intents get short TTLs.
	CacheTTLs map[string]time.Duration

	// Quality is the minimum acceptable answer-quality score per intent,
	// used by callers deciding whether to re-run with a stronger model.
	Quality map[string]float64

	// DefaultThreshold applies to unknown intents.
	DefaultThreshold float64

	// DefaultCacheTTL applies to unknown intents.
	DefaultCacheTTL time.Duration

	// DefaultQuality applies to unknown intents.
	DefaultQuality float64
}

// DefaultConfig returns the standing consultation-platform tables.
func DefaultConfig() Config {
	return Config{
		Thresholds: map[string]float64{
			"pricing":         ThresholdHigh,
			"availability":    ThresholdHigh,
			"legal":           ThresholdHigh,
			"medical":         ThresholdHigh,
			"financial":       ThresholdHigh,
			"technical":       ThresholdMedium,
			"comparison":      ThresholdMedium,
			"troubleshooting": ThresholdMedium,
			"general":         ThresholdLow,
		},
		CacheTTLs: map[string]time.Duration{
			// Volatile facts go stale fast.
			"pricing":      5 * time.Minute,
			"availability": 2 * time.Minute,
			// Stable reference material keeps for a day.
			"technical": 24 * time.Hour,
			"legal":     24 * time.Hour,
			"general":   time.Hour,
		},
		Quality: map[string]float64{
			"legal":     0.9,
			"medical":   0.9,
			"financial": 0.85,
			"general":   0.6,
		},
		DefaultThreshold: ThresholdMedium,
		DefaultCacheTTL:  30 * time.Minute,
		DefaultQuality:   0.7,
	}
}

func applyDefaults(cfg Config) Config {
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = ThresholdMedium
	}
	if cfg.DefaultCacheTTL <= 0 {
		cfg.DefaultCacheTTL = 30 * time.Minute
	}
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 0.7
	}
	return cfg
}

// Manager answers trust and caching questions about classified intents.
type Manager struct {
	config Config
}

// NewManager creates a manager over the given tables.
func NewManager(cfg Config) *Manager {
	return &Manager{config: applyDefaults(cfg)}
}

// Threshold returns the minimum acceptable confidence for an intent.
func (m *Manager) Threshold(intent string) float64 {
	if threshold, ok := m.config.Thresholds[intent]; ok {
		return threshold
	}
	return m.config.DefaultThreshold
}

// CacheTTL returns how long cached results for an intent stay fresh.
func (m *Manager) CacheTTL(intent string) time.Duration {
	if ttl, ok := m.config.CacheTTLs[intent]; ok {
		return ttl
	}
	return m.config.DefaultCacheTTL
}

// ShouldEscalate reports whether a classification is too uncertain to act
// on without escalation.
func (m *Manager) ShouldEscalate(conf float64, intent string) bool {
	return conf < m.Threshold(intent)
}

// QualityRequirement returns the minimum acceptable answer-quality score
// for an intent.
func (m *Manager) QualityRequirement(intent string) float64 {
	if quality, ok := m.config.Quality[intent]; ok {
		return quality
	}
	return m.config.DefaultQuality
}
