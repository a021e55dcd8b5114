package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"gopkg.in/yaml.v3"
)

// Manager owns the live configuration. Reads go through an atomic pointer
// so hot reloads never block request processing; registered change watchers
// run synchronously after each successful load.
type Manager struct {
	configPtr unsafe.Pointer
	path      string
	watchers  []func(*Config)
	watcherMu sync.RWMutex
}

type Config struct {
	Queue     QueueConfig     `yaml:"queue"`
	Intent    IntentConfig    `yaml:"intent"`
	Providers ProvidersConfig `yaml:"providers"`
	Planner   PlannerConfig   `yaml:"planner"`
	Trace     TraceConfig     `yaml:"trace"`
	Transport TransportConfig `yaml:"transport"`
	Status    StatusConfig    `yaml:"status"`
}

type QueueConfig struct {
	Namespace      string        `yaml:"namespace"`
	Workers        int           `yaml:"workers"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	MaxRetries     int           `yaml:"max_retries"`
}

type IntentConfig struct {
	Model     string        `yaml:"model"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type ProvidersConfig struct {
	Default   string         `yaml:"default"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

type ProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	BaseURL   string `yaml:"base_url"`
}

type PlannerConfig struct {
	HighConfidence float64 `yaml:"high_confidence"`
}

type TraceConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

type TransportConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

type StatusConfig struct {
	DBPath string `yaml:"db_path"`
}

// NewManager creates a manager bound to a config file path. The path may
// name a file that does not exist yet; defaults apply until it does.
func NewManager(path string) *Manager {
	m := &Manager{path: path}
	cfg := DefaultConfig()
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			Namespace:      "relay",
			Workers:        4,
			PollInterval:   100 * time.Millisecond,
			HandlerTimeout: 30 * time.Second,
			RetryBaseDelay: 5 * time.Second,
			MaxRetries:     3,
		},
		Intent: IntentConfig{
			Model:     "claude-haiku-4-5-20251001",
			CacheSize: 512,
			CacheTTL:  24 * time.Hour,
		},
		Providers: ProvidersConfig{
			Default: "anthropic",
			Anthropic: ProviderConfig{
				Model:     "claude-haiku-4-5-20251001",
				MaxTokens: 1024,
			},
			OpenAI: ProviderConfig{
				Model:     "gpt-5.2-codex",
				MaxTokens: 1024,
			},
		},
		Planner: PlannerConfig{
			HighConfidence: 0.85,
		},
		Trace: TraceConfig{
			Enabled:    true,
			MaxEntries: 20,
		},
		Transport: TransportConfig{
			BufferSize: 256,
		},
		Status: StatusConfig{
			DBPath: ".relay/item_status.db",
		},
	}
}

// Get returns the current configuration snapshot.
func (m *Manager) Get() *Config {
	return (*Config)(atomic.LoadPointer(&m.configPtr))
}

// Path returns the config file path the manager loads from.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the config file over defaults, applies environment overrides,
// swaps the live snapshot, and notifies change watchers. A missing file is
// not an error.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := m.loadYAMLFile(m.path, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", m.path, err)
	}

	m.applyEnvironment(cfg)

	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	m.notifyWatchers(cfg)

	return nil
}

func (m *Manager) loadYAMLFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func (m *Manager) applyEnvironment(cfg *Config) {
	if v := os.Getenv("RELAY_QUEUE_WORKERS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Queue.Workers = n
		}
	}
	if v := os.Getenv("RELAY_QUEUE_HANDLER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Queue.HandlerTimeout = d
		}
	}
	if v := os.Getenv("RELAY_QUEUE_MAX_RETRIES"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Queue.MaxRetries = n
		}
	}
	if v := os.Getenv("RELAY_INTENT_MODEL"); v != "" {
		cfg.Intent.Model = v
	}
	if v := os.Getenv("RELAY_PROVIDER"); v != "" {
		cfg.Providers.Default = strings.ToLower(v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("RELAY_TRACE_ENABLED"); v != "" {
		cfg.Trace.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("RELAY_STATUS_DB_PATH"); v != "" {
		cfg.Status.DBPath = v
	}
}

// OnChange registers a callback invoked after every successful Load.
func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

// Reload re-reads the config file.
func (m *Manager) Reload() error {
	return m.Load()
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
