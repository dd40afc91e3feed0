package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-context/internal/config"
	"github.com/kubilitics/kubilitics-context/internal/engine"
	"github.com/kubilitics/kubilitics-context/internal/logging"
)

type app struct {
	configPath string
	kubeconfig string
	context    string
	namespace  string
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "contextd",
		Short:         "Cluster context engine for Kubilitics",
		Long:          "contextd watches a cluster, keeps compact health snapshots of pods, deployments and nodes, detects anomalies, and serves token-budgeted context to chat clients.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath, "path to the config file")
	cmd.PersistentFlags().StringVar(&a.kubeconfig, "kubeconfig", "", "path to the kubeconfig file")
	cmd.PersistentFlags().StringVar(&a.context, "context", "", "override kubeconfig context")
	cmd.PersistentFlags().StringVarP(&a.namespace, "namespace", "n", "", "restrict namespaced kinds to one namespace")

	cmd.AddCommand(
		newServeCmd(a),
		newSnapshotCmd(a),
		newVersionCmd(),
	)
	cmd.SetVersionTemplate(fmt.Sprintf("contextd {{.Version}} (commit %s, built %s)\n", commit, buildDate))
	return cmd
}

// loadConfig reads the config file and applies flag overrides. Flags win
// over the file and the environment.
func (a *app) loadConfig(ctx context.Context) (config.ConfigManager, *config.Config, error) {
	mgr, err := config.NewConfigManager(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, nil, err
	}
	cfg := mgr.Get(ctx)
	a.applyFlags(cfg)
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, nil, fmt.Errorf("configuration validation failed: %s", strings.Join(msgs, "; "))
	}
	return mgr, cfg, nil
}

func (a *app) applyFlags(cfg *config.Config) {
	if v := strings.TrimSpace(a.kubeconfig); v != "" {
		cfg.Kube.Kubeconfig = v
	}
	if v := strings.TrimSpace(a.context); v != "" {
		cfg.Kube.Context = v
	}
	if v := strings.TrimSpace(a.namespace); v != "" {
		cfg.Kube.Namespace = v
	}
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		TokenBudget:             cfg.Engine.TokenBudget,
		SummariesEnabled:        cfg.Engine.SummariesEnabled,
		AnomalyDetectionEnabled: cfg.Engine.AnomalyDetectionEnabled,
	}
}

func enginePatch(cfg config.Config) engine.ConfigPatch {
	budget := cfg.Engine.TokenBudget
	summaries := cfg.Engine.SummariesEnabled
	anomalies := cfg.Engine.AnomalyDetectionEnabled
	return engine.ConfigPatch{
		TokenBudget:             &budget,
		SummariesEnabled:        &summaries,
		AnomalyDetectionEnabled: &anomalies,
	}
}

func loggingConfig(cfg *config.Config) logging.Config {
	return logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show contextd build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "contextd %s (commit %s, built %s)\n", version, commit, buildDate)
			return nil
		},
	}
}
