package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate engine configuration
	if c.Engine.TokenBudget < 1 {
		errs = append(errs, &ValidationError{
			Field:   "engine.token_budget",
			Message: fmt.Sprintf("token_budget must be positive, got %d", c.Engine.TokenBudget),
		})
	}

	if c.Engine.ReconcileDelay <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "engine.reconcile_delay",
			Message: fmt.Sprintf("reconcile_delay must be positive, got %s", c.Engine.ReconcileDelay),
		})
	}

	if c.Engine.SummaryCacheSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "engine.summary_cache_size",
			Message: fmt.Sprintf("summary_cache_size must be at least 1, got %d", c.Engine.SummaryCacheSize),
		})
	}

	// Validate kube configuration
	if len(c.Kube.Kinds) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "kube.kinds",
			Message: "at least one resource kind is required",
		})
	}
	for _, kind := range c.Kube.Kinds {
		if !snapshot.Supported(kind) {
			errs = append(errs, &ValidationError{
				Field:   "kube.kinds",
				Message: fmt.Sprintf("unsupported kind '%s', must be one of: Pod, Deployment, Node", kind),
			})
		}
	}

	if c.Kube.Kubeconfig != "" {
		if _, err := os.Stat(c.Kube.Kubeconfig); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "kube.kubeconfig",
				Message: fmt.Sprintf("kubeconfig file does not exist: %s", c.Kube.Kubeconfig),
			})
		}
	}

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, console", c.Logging.Format),
		})
	}

	if c.Logging.File != "" && c.Logging.MaxSizeMB < 1 {
		errs = append(errs, &ValidationError{
			Field:   "logging.max_size_mb",
			Message: fmt.Sprintf("max_size_mb must be at least 1 when logging to a file, got %d", c.Logging.MaxSizeMB),
		})
	}

	return errs
}
