package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

func podSnap(name string, ready bool, restarts int, warnings ...string) snapshot.Snapshot {
	return snapshot.Snapshot{
		Kind: snapshot.KindPod, Namespace: "default", Name: name,
		Phase: "Running", Ready: ready, RestartCount: restarts, Warnings: warnings,
	}
}

func TestBuildSummary_Pods(t *testing.T) {
	pods := []snapshot.Snapshot{
		podSnap("a", false, 10, "CrashLoopBackOff"),
		podSnap("b", false, 3, "CrashLoopBackOff"),
		podSnap("c", false, 0, "ImagePullBackOff"),
		podSnap("d", false, 0, "Error"),
		podSnap("e", false, 0, "Error"),
		podSnap("f", false, 0, "Error"),
		podSnap("g", false, 0, "Error"),
		podSnap("h", false, 0, "Error"),
		podSnap("i", true, 7),
	}

	s := buildSummary(snapshot.KindPod, "default", pods)

	assert.Equal(t, "9 pods in default (9 Running); 8 need attention.", s.Text)
	assert.Equal(t, []string{
		"Error: 5 resources",
		"CrashLoopBackOff: a, b",
		"c: ImagePullBackOff",
		"i: 7 restarts",
	}, s.Issues)
	assert.Equal(t, []Stat{
		{Label: "Total", Value: 9, Color: ColorBlue},
		{Label: "Running", Value: 1, Color: ColorGreen},
		{Label: "Pending", Value: 0, Color: ColorGray},
		{Label: "Unhealthy", Value: 8, Color: ColorRed},
		{Label: "Restarting", Value: 3, Color: ColorYellow},
	}, s.Stats)
	assert.False(t, s.FromCache)
}

func TestBuildSummary_TopRestartsCappedAtFive(t *testing.T) {
	var pods []snapshot.Snapshot
	for i, name := range []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"} {
		pods = append(pods, podSnap(name, true, i+1))
	}
	s := buildSummary(snapshot.KindPod, "", pods)
	assert.Equal(t, []string{
		"default/p7: 7 restarts",
		"default/p6: 6 restarts",
		"default/p5: 5 restarts",
		"default/p4: 4 restarts",
		"default/p3: 3 restarts",
	}, s.Issues)
	assert.Equal(t, "7 pods (7 Running); all healthy.", s.Text)
}

func TestBuildSummary_Deployments(t *testing.T) {
	deps := []snapshot.Snapshot{
		{Kind: "Deployment", Namespace: "prod", Name: "api", Phase: snapshot.PhaseAvailable, Ready: true,
			Replicas: &snapshot.Replicas{Desired: 2, Ready: 2}},
		{Kind: "Deployment", Namespace: "prod", Name: "web", Phase: snapshot.PhaseDegraded,
			Replicas: &snapshot.Replicas{Desired: 3, Ready: 2, Unavailable: 1},
			Warnings: []string{"1/3 replicas unavailable"}},
	}
	s := buildSummary(snapshot.KindDeployment, "prod", deps)
	assert.Equal(t, []string{"web: 1/3 replicas unavailable", "web: 2/3 ready"}, s.Issues)
	assert.Equal(t, []Stat{
		{Label: "Total", Value: 2, Color: ColorBlue},
		{Label: "Available", Value: 1, Color: ColorGreen},
		{Label: "Degraded", Value: 1, Color: ColorYellow},
		{Label: "Unavailable", Value: 0, Color: ColorGray},
	}, s.Stats)
}

func TestBuildSummary_Nodes(t *testing.T) {
	nodes := []snapshot.Snapshot{
		{Kind: "Node", Name: "n1", Phase: snapshot.PhaseReady, Ready: true, Warnings: []string{"MemoryPressure"}},
		{Kind: "Node", Name: "n2", Phase: snapshot.PhaseNotReady, Warnings: []string{"kubelet stopped posting"}},
	}
	s := buildSummary(snapshot.KindNode, "", nodes)
	assert.Equal(t, []string{
		"n1: MemoryPressure",
		"n2: kubelet stopped posting",
		"n1 has MemoryPressure",
		"n2 is NotReady",
	}, s.Issues)
	assert.Equal(t, []Stat{
		{Label: "Total", Value: 2, Color: ColorBlue},
		{Label: "Ready", Value: 1, Color: ColorGreen},
		{Label: "NotReady", Value: 1, Color: ColorRed},
		{Label: "Pressure", Value: 1, Color: ColorYellow},
	}, s.Stats)
	assert.Equal(t, "2 nodes (1 NotReady, 1 Ready); 2 need attention.", s.Text)
}

func TestBuildSummary_Empty(t *testing.T) {
	s := buildSummary("StatefulSet", "", nil)
	assert.Equal(t, "0 statefulsets.", s.Text)
	assert.Empty(t, s.Issues)
	assert.Equal(t, []Stat{
		{Label: "Total", Value: 0, Color: ColorBlue},
		{Label: "Healthy", Value: 0, Color: ColorGreen},
		{Label: "Unhealthy", Value: 0, Color: ColorGray},
	}, s.Stats)
}
