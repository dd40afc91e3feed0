package config

import "time"

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Engine defaults
	cfg.Engine.TokenBudget = 2000
	cfg.Engine.SummariesEnabled = true
	cfg.Engine.AnomalyDetectionEnabled = true
	cfg.Engine.ReconcileDelay = 2 * time.Second
	cfg.Engine.SummaryCacheSize = 128

	// Kube defaults
	cfg.Kube.Kubeconfig = ""
	cfg.Kube.Context = ""
	cfg.Kube.Namespace = ""
	cfg.Kube.Kinds = []string{"Pod", "Deployment", "Node"}

	// Server defaults
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8090
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}
