package store

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

func pod(ns, name, phase string, ready bool) snapshot.Snapshot {
	return snapshot.Snapshot{Kind: snapshot.KindPod, Namespace: ns, Name: name, Phase: phase, Ready: ready}
}

func node(name string, ready bool) snapshot.Snapshot {
	phase := snapshot.PhaseReady
	if !ready {
		phase = snapshot.PhaseNotReady
	}
	return snapshot.Snapshot{Kind: snapshot.KindNode, Name: name, Phase: phase, Ready: ready}
}

func TestNew(t *testing.T) {
	st := New()
	if st.Count() != 0 {
		t.Errorf("Expected count 0, got %d", st.Count())
	}
	if got := st.GetAll(); len(got) != 0 {
		t.Errorf("Expected empty GetAll, got %d", len(got))
	}
	if got := st.GetByKind("Pod"); got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil slice for unknown kind, got %v", got)
	}
}

func TestUpsertReplaces(t *testing.T) {
	st := New()
	st.Upsert(pod("default", "api", "Pending", false))
	st.Upsert(pod("default", "api", "Running", true))

	if st.Count() != 1 {
		t.Fatalf("Expected count 1, got %d", st.Count())
	}
	got, ok := st.Get("Pod", "default", "api")
	if !ok {
		t.Fatal("Expected pod to be found")
	}
	if got.Phase != "Running" || !got.Ready {
		t.Errorf("Expected replaced snapshot, got %+v", got)
	}
}

func TestUpsertStoresCopy(t *testing.T) {
	st := New()
	s := pod("default", "api", "Running", true)
	s.Warnings = []string{"BackOff"}
	st.Upsert(s)
	s.Warnings[0] = "mutated"

	got, _ := st.Get("Pod", "default", "api")
	if got.Warnings[0] != "BackOff" {
		t.Errorf("Store shares memory with caller: %v", got.Warnings)
	}
	got.Warnings[0] = "mutated again"
	again, _ := st.Get("Pod", "default", "api")
	if again.Warnings[0] != "BackOff" {
		t.Errorf("Get leaks stored memory: %v", again.Warnings)
	}
}

func TestDeletePrunesIndexes(t *testing.T) {
	st := New()
	st.Upsert(pod("team-a", "p1", "Running", true))
	st.Upsert(node("n1", true))

	if !st.Delete("Pod", "team-a", "p1") {
		t.Fatal("Expected delete to report removal")
	}
	if st.Delete("Pod", "team-a", "p1") {
		t.Error("Expected second delete to be a no-op")
	}
	if _, ok := st.kindIndex["Pod"]; ok {
		t.Error("Expected empty kind index level to be pruned")
	}
	if _, ok := st.namespaceIndex["team-a"]; ok {
		t.Error("Expected empty namespace index level to be pruned")
	}
	if st.Count() != 1 {
		t.Errorf("Expected count 1, got %d", st.Count())
	}
}

func TestCRUDRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	st := New()
	live := make(map[snapshot.ResourceID]bool)

	for i := 0; i < 500; i++ {
		s := pod(fmt.Sprintf("ns-%d", rng.Intn(3)), fmt.Sprintf("p-%d", rng.Intn(20)), "Running", true)
		if rng.Intn(3) == 0 {
			st.Delete(s.Kind, s.Namespace, s.Name)
			delete(live, s.ID())
			continue
		}
		st.Upsert(s)
		live[s.ID()] = true
	}

	if st.Count() != len(live) {
		t.Fatalf("Expected count %d, got %d", len(live), st.Count())
	}
	for id := range live {
		got, ok := st.Get(id.Kind, id.Namespace, id.Name)
		if !ok {
			t.Errorf("Expected %s to be retrievable", id)
			continue
		}
		if got.Kind != id.Kind || got.Name != id.Name {
			t.Errorf("Mismatched snapshot for %s: %+v", id, got)
		}
	}
}

func TestClear(t *testing.T) {
	st := New()
	st.Upsert(pod("default", "crash", "CrashLoopBackOff", false))
	st.Upsert(node("n1", false))
	st.Clear()

	if st.Count() != 0 {
		t.Errorf("Expected count 0, got %d", st.Count())
	}
	if len(st.GetAll()) != 0 || len(st.GetUnhealthy()) != 0 {
		t.Error("Expected no resources after Clear")
	}
	for _, kind := range []string{"Pod", "Node", "Deployment"} {
		if len(st.GetByKind(kind)) != 0 {
			t.Errorf("Expected no %s after Clear", kind)
		}
	}
}

func TestClearKind(t *testing.T) {
	st := New()
	st.Upsert(pod("default", "a", "Running", true))
	st.Upsert(pod("other", "b", "Running", true))
	st.Upsert(node("n1", true))

	if n := st.ClearKind("Pod"); n != 2 {
		t.Errorf("Expected 2 removed, got %d", n)
	}
	if len(st.GetByNamespace("default")) != 0 {
		t.Error("Expected namespace index to be cleaned")
	}
	if got := st.CountByKind(); got["Node"] != 1 || len(got) != 1 {
		t.Errorf("Unexpected counts %v", got)
	}
}

func TestGetByNamespaceClusterScoped(t *testing.T) {
	st := New()
	st.Upsert(node("n2", true))
	st.Upsert(node("n1", true))
	st.Upsert(pod("default", "a", "Running", true))

	got := st.GetByNamespace("")
	if len(got) != 2 || got[0].Name != "n1" || got[1].Name != "n2" {
		t.Errorf("Expected sorted cluster-scoped nodes, got %+v", got)
	}
}

func TestGetByFilterMatchesGetAll(t *testing.T) {
	st := New()
	for i := 0; i < 30; i++ {
		st.Upsert(snapshot.Snapshot{
			Kind:         snapshot.KindPod,
			Namespace:    "default",
			Name:         fmt.Sprintf("p-%02d", i),
			RestartCount: i,
			Ready:        true,
		})
	}
	pred := func(s snapshot.Snapshot) bool { return s.RestartCount%3 == 0 }

	want := make(map[string]bool)
	for _, s := range st.GetAll() {
		if pred(s) {
			want[s.Name] = true
		}
	}
	got := st.GetByFilter(pred)
	if len(got) != len(want) {
		t.Fatalf("Expected %d matches, got %d", len(want), len(got))
	}
	for _, s := range got {
		if !want[s.Name] {
			t.Errorf("Unexpected match %s", s.Name)
		}
	}
}

func TestGetUnhealthy(t *testing.T) {
	st := New()
	p1 := snapshot.Snapshot{
		Kind: "Pod", Name: "p1", Namespace: "ns1", Phase: "Running",
		Ready: false, Warnings: []string{"CrashLoopBackOff"}, RestartCount: 12,
	}
	st.Upsert(p1)
	st.Upsert(pod("ns1", "healthy", "Running", true))
	st.Upsert(snapshot.Snapshot{
		Kind: "Deployment", Name: "web", Namespace: "ns1", Phase: "Degraded", Ready: true,
		Replicas: &snapshot.Replicas{Desired: 3, Ready: 3, Unavailable: 1},
	})

	got := st.GetUnhealthy()
	if len(got) != 2 {
		t.Fatalf("Expected 2 unhealthy, got %d", len(got))
	}
	if got[0].Kind != "Deployment" || got[1].Name != "p1" {
		t.Errorf("Unexpected unhealthy set %+v", got)
	}
}

func TestHashByKind(t *testing.T) {
	a := New()
	a.Upsert(pod("x", "one", "Running", true))
	a.Upsert(pod("y", "two", "Pending", false))

	b := New()
	b.Upsert(pod("y", "two", "Pending", false))
	b.Upsert(pod("x", "one", "Running", true))

	if a.HashByKind("Pod") != b.HashByKind("Pod") {
		t.Error("Expected insertion order to not affect the hash")
	}

	before := a.HashByKind("Pod")
	a.Upsert(pod("x", "one", "Failed", false))
	if a.HashByKind("Pod") == before {
		t.Error("Expected phase change to change the hash")
	}
	if New().HashByKind("Pod") != 0 {
		t.Error("Expected empty kind to hash to 0")
	}
}

func TestReconcileKind(t *testing.T) {
	st := New()
	st.Upsert(pod("default", "keep", "Running", true))
	st.Upsert(pod("default", "gone", "Running", true))
	st.Upsert(pod("other", "keep", "Running", true))
	st.Upsert(node("n1", true))

	removed := st.ReconcileKind("Pod", map[string]struct{}{
		"default/keep": {},
		"other/keep":   {},
	})
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if _, ok := st.Get("Pod", "default", "gone"); ok {
		t.Error("Expected unseen pod to be pruned")
	}
	if st.Count() != 3 {
		t.Errorf("Expected count 3, got %d", st.Count())
	}

	if n := st.ReconcileKind("Node", map[string]struct{}{"/n1": {}}); n != 0 {
		t.Errorf("Expected cluster-scoped key to match, removed %d", n)
	}
	if n := st.ReconcileKind("Node", nil); n != 1 {
		t.Errorf("Expected nil active set to prune everything, removed %d", n)
	}
}
