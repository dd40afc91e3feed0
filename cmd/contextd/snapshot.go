package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-context/internal/anomaly"
	"github.com/kubilitics/kubilitics-context/internal/engine"
	"github.com/kubilitics/kubilitics-context/internal/snapshot"
	"github.com/kubilitics/kubilitics-context/internal/watch"
)

// snapshotReport is the output of `contextd snapshot`.
type snapshotReport struct {
	Context   string              `json:"context" yaml:"context"`
	Resources []snapshot.Snapshot `json:"resources" yaml:"resources"`
	Anomalies []reportAnomaly     `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}

type reportAnomaly struct {
	ID       string `json:"id" yaml:"id"`
	Severity string `json:"severity" yaml:"severity"`
	Message  string `json:"message" yaml:"message"`
}

func newSnapshotCmd(a *app) *cobra.Command {
	var output string
	var chat string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "List the cluster once and print the resulting snapshots",
		Long:  "snapshot lists every configured kind once, runs anomaly detection and prints the store. With --chat it prints the context a chat message would receive instead.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			eng, err := engine.New(engineConfig(cfg))
			if err != nil {
				return err
			}
			cluster, err := watch.Connect(cfg.Kube.Kubeconfig, cfg.Kube.Context)
			if err != nil {
				return err
			}
			src, err := watch.New(cluster.Clientset, eng,
				watch.WithKinds(cfg.Kube.Kinds...),
				watch.WithNamespace(cfg.Kube.Namespace),
			)
			if err != nil {
				return err
			}
			if err := src.Prime(ctx); err != nil {
				return err
			}

			if strings.TrimSpace(chat) != "" {
				fmt.Fprintln(cmd.OutOrStdout(), eng.BuildChatContext(chat, nil))
				return nil
			}
			report := buildReport(cluster.Context, eng.GetStore().GetAll(), eng.GetAnomalies())
			return writeReport(cmd.OutOrStdout(), output, report)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml|json")
	cmd.Flags().StringVar(&chat, "chat", "", "print the chat context built for this message")
	return cmd
}

func buildReport(contextName string, resources []snapshot.Snapshot, anomalies []anomaly.Anomaly) snapshotReport {
	report := snapshotReport{Context: contextName, Resources: resources}
	if report.Resources == nil {
		report.Resources = []snapshot.Snapshot{}
	}
	for _, an := range anomalies {
		report.Anomalies = append(report.Anomalies, reportAnomaly{
			ID:       an.ID,
			Severity: string(an.Severity),
			Message:  an.Message,
		})
	}
	return report
}

func writeReport(w io.Writer, format string, report snapshotReport) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return fmt.Errorf("unsupported output format %q (use yaml or json)", format)
	}
}
