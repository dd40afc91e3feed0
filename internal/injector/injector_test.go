package injector

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-context/internal/snapshot"
	"github.com/kubilitics/kubilitics-context/internal/store"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New()
	for i := 0; i < 40; i++ {
		s := snapshot.Snapshot{
			Kind:      snapshot.KindPod,
			Namespace: fmt.Sprintf("ns-%d", i%2),
			Name:      fmt.Sprintf("pod-%02d", i),
			Phase:     "Running",
			Ready:     true,
		}
		if i%7 == 0 {
			s.Ready = false
			s.Warnings = []string{"CrashLoopBackOff"}
			s.RestartCount = i
		}
		st.Upsert(s)
	}
	st.Upsert(snapshot.Snapshot{
		Kind: snapshot.KindDeployment, Namespace: "ns-0", Name: "web", Phase: snapshot.PhaseDegraded, Ready: false,
		Replicas: &snapshot.Replicas{Desired: 3, Ready: 2, Unavailable: 1},
		Warnings: []string{"1/3 replicas unavailable"},
	})
	st.Upsert(snapshot.Snapshot{Kind: snapshot.KindNode, Name: "node-a", Phase: snapshot.PhaseReady, Ready: true})
	st.Upsert(snapshot.Snapshot{Kind: snapshot.KindNode, Name: "node-b", Phase: snapshot.PhaseNotReady})
	return st
}

func assertUnhealthyFirst(t *testing.T, st *store.Store, out string) {
	t.Helper()
	unhealthy := make(map[string]bool)
	for _, s := range st.GetUnhealthy() {
		unhealthy[CompressResource(s)] = true
	}
	seenHealthy := false
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if unhealthy[line] {
			assert.False(t, seenHealthy, "unhealthy line after healthy one: %s", line)
		} else {
			seenHealthy = true
		}
	}
}

func TestCompressResource(t *testing.T) {
	line := CompressResource(snapshot.Snapshot{
		Kind: "Pod", Name: "api-0", Namespace: "default", Phase: "Running", Ready: false,
		RestartCount: 3,
		ResourceUsage: &snapshot.ResourceUsage{CPURequests: "100m", MemoryRequests: "64Mi", CPULimits: "1"},
		Warnings:      []string{"CrashLoopBackOff", "OOMKilled"},
	})
	assert.Equal(t,
		"[Pod] api-0 ns=default phase=Running ready=false restarts=3 cpu-req=100m mem-req=64Mi warn=CrashLoopBackOff,OOMKilled",
		line)

	line = CompressResource(snapshot.Snapshot{
		Kind: "Deployment", Name: "web", Namespace: "prod", Phase: "Degraded", Ready: false,
		Replicas: &snapshot.Replicas{Desired: 3, Ready: 2, Unavailable: 1},
	})
	assert.Equal(t, "[Deployment] web ns=prod phase=Degraded ready=false ready=2/3 unavailable=1", line)

	line = CompressResource(snapshot.Snapshot{Kind: "Node", Name: "n1", Ready: true})
	assert.Equal(t, "[Node] n1 phase=Unknown ready=true", line)
}

func TestCompressResource_SingleLineNoBraces(t *testing.T) {
	line := CompressResource(snapshot.Snapshot{
		Kind: "Node", Name: "n1", Phase: "NotReady",
		Warnings: []string{"kubelet said {\"err\":\"x\"}\nsecond line"},
	})
	assert.NotContains(t, line, "\n")
	assert.NotContains(t, line, "{")
	assert.NotContains(t, line, "}")
	assert.Contains(t, line, "phase=NotReady")
	assert.Contains(t, line, "ready=false")
	assert.NotContains(t, line, "ns=")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 1, EstimateTokens("ñüé"))
	assert.Equal(t, 1, EstimateTokens("😀"))
	assert.Equal(t, 1, EstimateTokens("😀😀"))
	assert.Equal(t, 2, EstimateTokens("😀😀a"))
	assert.Equal(t, 2, EstimateTokens("😀😀😀😀"))
}

func TestInferResourceTypes(t *testing.T) {
	assert.Equal(t, []string{"Pod"}, InferResourceTypes("Show me CRASHING containers"))
	assert.Equal(t, []string{"Deployment", "Node"}, InferResourceTypes("scale the rollout off the cordoned node"))
	assert.Empty(t, InferResourceTypes("hello there"))
}

func TestIsProblemQuery(t *testing.T) {
	for _, msg := range []string{"what is failing?", "show me crashing pods", "Why is it DOWN", "node not ready"} {
		assert.True(t, IsProblemQuery(msg), msg)
	}
	assert.False(t, IsProblemQuery("list namespaces"))
}

func TestBuildChatContext_BudgetAndOrdering(t *testing.T) {
	st := seededStore(t)
	in := New(st, 0)
	require.Equal(t, DefaultTokenBudget, in.TokenBudget())

	for _, budget := range []int{1, 20, 60, 150, 10000} {
		out := in.BuildChatContext("what is failing?", &ChatQuery{MaxTokens: budget})
		lines := strings.Split(out, "\n")
		require.NotEmpty(t, lines[0])
		if len(lines) > 1 {
			assert.LessOrEqual(t, EstimateTokens(out), budget, "budget %d", budget)
		}
		assertUnhealthyFirst(t, st, out)
	}
}

func TestBuildChatContext_FirstLineAlwaysIncluded(t *testing.T) {
	st := seededStore(t)
	out := New(st, 1).BuildChatContext("", nil)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "["))
}

func TestBuildChatContext_InferredPodsOnly(t *testing.T) {
	st := seededStore(t)
	out := New(st, 10000).BuildChatContext("show me crashing pods", nil)
	for _, line := range strings.Split(out, "\n") {
		assert.True(t, strings.HasPrefix(line, "[Pod]"), line)
	}
}

func TestBuildChatContext_ExplicitTypesWin(t *testing.T) {
	st := seededStore(t)
	out := New(st, 10000).BuildChatContext("show me pods", &ChatQuery{ResourceTypes: []string{"Node"}})
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[Node] node-b"))
}

func TestBuildChatContext_Filters(t *testing.T) {
	st := seededStore(t)
	in := New(st, 10000)

	out := in.BuildChatContext("", &ChatQuery{Namespaces: []string{"ns-1"}})
	for _, line := range strings.Split(out, "\n") {
		assert.Contains(t, line, "ns=ns-1")
	}

	out = in.BuildChatContext("", &ChatQuery{UnhealthyOnly: true})
	assert.Len(t, strings.Split(out, "\n"), len(st.GetUnhealthy()))

	assert.Equal(t, "", New(store.New(), 100).BuildChatContext("pods", nil))
}

func TestSetTokenBudget(t *testing.T) {
	st := seededStore(t)
	in := New(st, 10000)
	full := in.BuildChatContext("", nil)

	in.SetTokenBudget(50)
	small := in.BuildChatContext("", nil)
	assert.Less(t, len(small), len(full))
	assert.LessOrEqual(t, EstimateTokens(small), 50)

	in.SetTokenBudget(0)
	assert.Equal(t, 50, in.TokenBudget())
}

func TestBuildSummaryContext(t *testing.T) {
	st := seededStore(t)
	in := New(st, 1)

	out := in.BuildSummaryContext("Pod", "ns-0")
	lines := strings.Split(out, "\n")
	assert.Greater(t, len(lines), 1, "summary ignores the chat budget")
	assert.LessOrEqual(t, EstimateTokens(out), SummaryTokenBudget)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "[Pod]"))
		assert.Contains(t, line, "ns=ns-0")
	}
	assertUnhealthyFirst(t, st, out)

	assert.Equal(t, "", in.BuildSummaryContext("StatefulSet", ""))
}
