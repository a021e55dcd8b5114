package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adalundhe/relay/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_DefaultsWhenFileMissing(t *testing.T) {
	m := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, "relay", cfg.Queue.Namespace)
	assert.Equal(t, "anthropic", cfg.Providers.Default)
	assert.True(t, cfg.Trace.Enabled)
}

func TestManager_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("queue:\n  workers: 8\n  handler_timeout: 10s\nproviders:\n  default: openai\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m := config.NewManager(path)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, 10*time.Second, cfg.Queue.HandlerTimeout)
	assert.Equal(t, "openai", cfg.Providers.Default)

	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 512, cfg.Intent.CacheSize)
}

func TestManager_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  workers: 8\n"), 0o644))
	t.Setenv("RELAY_QUEUE_WORKERS", "2")
	t.Setenv("RELAY_TRACE_ENABLED", "false")

	m := config.NewManager(path)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.False(t, cfg.Trace.Enabled)
}

func TestManager_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue: [not a mapping"), 0o644))

	m := config.NewManager(path)
	assert.Error(t, m.Load())

	// The live snapshot is untouched by a failed load.
	assert.Equal(t, 4, m.Get().Queue.Workers)
}

func TestManager_OnChangeFiresPerLoad(t *testing.T) {
	m := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))

	var calls atomic.Int32
	m.OnChange(func(cfg *config.Config) {
		calls.Add(1)
	})

	require.NoError(t, m.Load())
	require.NoError(t, m.Reload())
	assert.Equal(t, int32(2), calls.Load())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  workers: 8\n"), 0o644))

	m := config.NewManager(path)
	require.NoError(t, m.Load())

	reloaded := make(chan *config.Config, 4)
	m.OnChange(func(cfg *config.Config) {
		reloaded <- cfg
	})

	w, err := config.NewWatcher(m, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("queue:\n  workers: 16\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 16, cfg.Queue.Workers)
	case <-time.After(5 * time.Second):
		t.Fatal("config never reloaded")
	}
}
