package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test engine defaults
	assert.Equal(t, 2000, cfg.Engine.TokenBudget)
	assert.True(t, cfg.Engine.SummariesEnabled)
	assert.True(t, cfg.Engine.AnomalyDetectionEnabled)
	assert.Equal(t, 2*time.Second, cfg.Engine.ReconcileDelay)
	assert.Equal(t, 128, cfg.Engine.SummaryCacheSize)

	// Test kube defaults
	assert.Equal(t, []string{"Pod", "Deployment", "Node"}, cfg.Kube.Kinds)
	assert.Empty(t, cfg.Kube.Namespace)

	// Test server defaults
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)

	// Test logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Empty(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		modifyFn func(*Config)
		errorMsg string
	}{
		{
			name:     "zero token budget",
			modifyFn: func(cfg *Config) { cfg.Engine.TokenBudget = 0 },
			errorMsg: "token_budget must be positive",
		},
		{
			name:     "zero reconcile delay",
			modifyFn: func(cfg *Config) { cfg.Engine.ReconcileDelay = 0 },
			errorMsg: "reconcile_delay must be positive",
		},
		{
			name:     "empty summary cache",
			modifyFn: func(cfg *Config) { cfg.Engine.SummaryCacheSize = 0 },
			errorMsg: "summary_cache_size must be at least 1",
		},
		{
			name:     "no kinds",
			modifyFn: func(cfg *Config) { cfg.Kube.Kinds = nil },
			errorMsg: "at least one resource kind is required",
		},
		{
			name:     "unsupported kind",
			modifyFn: func(cfg *Config) { cfg.Kube.Kinds = []string{"Pod", "Secret"} },
			errorMsg: "unsupported kind 'Secret'",
		},
		{
			name:     "missing kubeconfig",
			modifyFn: func(cfg *Config) { cfg.Kube.Kubeconfig = "/nonexistent/kubeconfig" },
			errorMsg: "kubeconfig file does not exist",
		},
		{
			name:     "invalid port - too high",
			modifyFn: func(cfg *Config) { cfg.Server.Port = 70000 },
			errorMsg: "port must be between 1 and 65535",
		},
		{
			name:     "invalid log level",
			modifyFn: func(cfg *Config) { cfg.Logging.Level = "verbose" },
			errorMsg: "invalid log level",
		},
		{
			name:     "invalid log format",
			modifyFn: func(cfg *Config) { cfg.Logging.Format = "text" },
			errorMsg: "invalid log format",
		},
		{
			name: "file logging without size",
			modifyFn: func(cfg *Config) {
				cfg.Logging.File = "/var/log/contextd.log"
				cfg.Logging.MaxSizeMB = 0
			},
			errorMsg: "max_size_mb must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()
			require.NotEmpty(t, errs, "expected validation errors but got none")

			found := false
			for _, err := range errs {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
				if strings.Contains(err.Error(), tt.errorMsg) {
					found = true
				}
			}
			assert.True(t, found, "expected error message containing '%s', got: %v", tt.errorMsg, errs)
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "context.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestConfigManagerLoad(t *testing.T) {
	configPath := writeConfig(t, `
engine:
  token_budget: 800
  summaries_enabled: false
  reconcile_delay: 5s

kube:
  namespace: "payments"
  kinds: ["Pod", "Node"]

server:
  port: 9090

logging:
  level: "debug"
  format: "console"
`)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)

	assert.Equal(t, 800, cfg.Engine.TokenBudget)
	assert.False(t, cfg.Engine.SummariesEnabled)
	assert.True(t, cfg.Engine.AnomalyDetectionEnabled, "unset keys keep defaults")
	assert.Equal(t, 5*time.Second, cfg.Engine.ReconcileDelay)
	assert.Equal(t, "payments", cfg.Kube.Namespace)
	assert.Equal(t, []string{"Pod", "Node"}, cfg.Kube.Kinds)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.NoError(t, mgr.Validate(ctx))
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	t.Setenv("KUBILITICS_CONTEXT_ENGINE_TOKEN_BUDGET", "333")
	t.Setenv("KUBILITICS_CONTEXT_SERVER_PORT", "7070")

	configPath := writeConfig(t, `
engine:
  token_budget: 800
server:
  port: 8081
`)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 333, cfg.Engine.TokenBudget, "token budget should be overridden by environment variable")
	assert.Equal(t, 7070, cfg.Server.Port, "port should be overridden by environment variable")
}

func TestConfigManagerMissingFile(t *testing.T) {
	mgr, err := NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 2000, cfg.Engine.TokenBudget)
}

func TestConfigManagerNoPath(t *testing.T) {
	mgr, err := NewConfigManager("")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.Equal(t, 2000, mgr.Get(ctx).Engine.TokenBudget)
}

func TestConfigManagerValidation(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 99999
kube:
  kinds: ["Secret"]
`)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	err = mgr.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "kube.kinds")
}

func TestConfigManagerMalformedFile(t *testing.T) {
	configPath := writeConfig(t, "engine: [unclosed\n")

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	assert.Error(t, mgr.Load(context.Background()))
}

func TestConfigManagerWatch(t *testing.T) {
	configPath := writeConfig(t, "engine:\n  token_budget: 800\n")

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Load(ctx))
	updates := mgr.Watch(ctx)

	require.NoError(t, os.WriteFile(configPath, []byte("engine:\n  token_budget: 1200\n"), 0644))

	select {
	case cfg := <-updates:
		assert.Equal(t, 1200, cfg.Engine.TokenBudget)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
	assert.Equal(t, 1200, mgr.Get(ctx).Engine.TokenBudget)
}
