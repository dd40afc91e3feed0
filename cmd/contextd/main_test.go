package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-context/internal/anomaly"
	"github.com/kubilitics/kubilitics-context/internal/config"
	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "contextd dev (commit unknown, built unknown)\n", out.String())
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "snapshot", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	for _, flag := range []string{"config", "kubeconfig", "context", "namespace"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Kube.Namespace = "from-file"

	a := &app{context: " staging ", namespace: "payments"}
	a.applyFlags(cfg)

	assert.Equal(t, "staging", cfg.Kube.Context)
	assert.Equal(t, "payments", cfg.Kube.Namespace)
	assert.Empty(t, cfg.Kube.Kubeconfig)
}

func TestEngineMapping(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.TokenBudget = 750
	cfg.Engine.SummariesEnabled = false

	ec := engineConfig(cfg)
	assert.Equal(t, 750, ec.TokenBudget)
	assert.False(t, ec.SummariesEnabled)
	assert.True(t, ec.AnomalyDetectionEnabled)

	patch := enginePatch(*cfg)
	require.NotNil(t, patch.TokenBudget)
	assert.Equal(t, 750, *patch.TokenBudget)
	require.NotNil(t, patch.SummariesEnabled)
	assert.False(t, *patch.SummariesEnabled)

	lc := loggingConfig(cfg)
	assert.Equal(t, cfg.Logging.Level, lc.Level)
	assert.Equal(t, cfg.Logging.MaxSizeMB, lc.MaxSize)
}

func sampleReport() snapshotReport {
	pod := snapshot.Snapshot{
		Kind:         snapshot.KindPod,
		Name:         "worker",
		Namespace:    "payments",
		Phase:        "Running",
		RestartCount: 7,
		Warnings:     []string{"CrashLoopBackOff"},
	}
	return buildReport("prod", []snapshot.Snapshot{pod}, []anomaly.Anomaly{{
		ID:         "Pod/payments/worker/CrashLoopBackOff",
		Resource:   pod,
		Type:       anomaly.TypeCrashLoopBackOff,
		Severity:   anomaly.SeverityCritical,
		Message:    "Pod worker is in CrashLoopBackOff (7 restarts)",
		DetectedAt: time.Now(),
	}})
}

func TestWriteReportYAML(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeReport(&out, "yaml", sampleReport()))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "prod", decoded["context"])
	assert.Contains(t, out.String(), "restartCount: 7")
	assert.Contains(t, out.String(), "severity: critical")
}

func TestWriteReportJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeReport(&out, "JSON", sampleReport()))

	var decoded snapshotReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded.Resources, 1)
	assert.Equal(t, "worker", decoded.Resources[0].Name)
	require.Len(t, decoded.Anomalies, 1)
	assert.Equal(t, "critical", decoded.Anomalies[0].Severity)
}

func TestWriteReportRejectsUnknownFormat(t *testing.T) {
	err := writeReport(&bytes.Buffer{}, "table", sampleReport())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported output format"))
}

func TestBuildReportEmpty(t *testing.T) {
	report := buildReport("kind-dev", nil, nil)
	assert.NotNil(t, report.Resources)
	assert.Empty(t, report.Anomalies)
}
