package config

import (
	"context"
	"time"
)

// Package config provides configuration management for the context daemon.
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (KUBILITICS_CONTEXT_* prefix, "." becomes "_")
//   3. YAML config file (default: /etc/kubilitics/context.yaml)
//   4. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Engine
//      - token_budget: Default chat context budget in estimated tokens
//      - summaries_enabled: Serve view summaries
//      - anomaly_detection_enabled: Evaluate anomaly rules on updates
//      - reconcile_delay: Idle time before a re-listed kind is pruned
//      - summary_cache_size: Maximum number of cached summaries
//
//   2. Kube
//      - kubeconfig: Path to kubeconfig (empty: default loading rules)
//      - context: kubeconfig context override
//      - namespace: Restrict namespaced watches to one namespace
//      - kinds: Resource kinds to watch
//
//   3. Server
//      - host, port: Listen address
//      - allowed_origins: Origins permitted to open WebSocket connections
//
//   4. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "console"
//      - file: Log file path (empty: stderr), rotated by size
//
// Engine settings are the only ones applied on reload; the rest need a
// restart.

// Config struct contains all configuration fields
type Config struct {
	// Engine configuration
	Engine struct {
		TokenBudget             int
		SummariesEnabled        bool
		AnomalyDetectionEnabled bool
		ReconcileDelay          time.Duration
		SummaryCacheSize        int
	}

	// Kubernetes connection configuration
	Kube struct {
		Kubeconfig string
		Context    string
		Namespace  string
		Kinds      []string
	}

	// Server configuration
	Server struct {
		Host string
		Port int
		// AllowedOrigins is a list of origins permitted to open WebSocket connections.
		// Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches the config file and delivers each successfully reloaded
	// configuration.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// DefaultConfigPath is used when no path is given on the command line.
const DefaultConfigPath = "/etc/kubilitics/context.yaml"

// NewConfigManager creates a new configuration manager. An empty path means
// defaults plus environment only.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}
