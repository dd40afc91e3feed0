// Package store keeps the current snapshot of every watched resource, indexed
// by kind and namespace.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

// Store is an in-memory collection of snapshots keyed by (kind, namespace,
// name). All reads return fresh slices sorted by that key.
type Store struct {
	mu sync.RWMutex

	resources map[snapshot.ResourceID]snapshot.Snapshot

	// Index by kind
	kindIndex map[string]map[snapshot.ResourceID]struct{}

	// Index by namespace; cluster-scoped resources live under ""
	namespaceIndex map[string]map[snapshot.ResourceID]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		resources:      make(map[snapshot.ResourceID]snapshot.Snapshot),
		kindIndex:      make(map[string]map[snapshot.ResourceID]struct{}),
		namespaceIndex: make(map[string]map[snapshot.ResourceID]struct{}),
	}
}

// Upsert inserts s or fully replaces the snapshot stored under the same key.
func (st *Store) Upsert(s snapshot.Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()

	id := s.ID()
	st.resources[id] = s.Clone()
	addIndex(st.kindIndex, id.Kind, id)
	addIndex(st.namespaceIndex, id.Namespace, id)
}

// Delete removes a resource. It reports whether anything was removed.
func (st *Store) Delete(kind, namespace, name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.deleteLocked(snapshot.ResourceID{Kind: kind, Namespace: namespace, Name: name})
}

// Clear drops every resource.
func (st *Store) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.resources = make(map[snapshot.ResourceID]snapshot.Snapshot)
	st.kindIndex = make(map[string]map[snapshot.ResourceID]struct{})
	st.namespaceIndex = make(map[string]map[snapshot.ResourceID]struct{})
}

// ClearKind drops every resource of kind and returns how many were removed.
func (st *Store) ClearKind(kind string) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	ids := st.kindIndex[kind]
	n := len(ids)
	for id := range ids {
		st.deleteLocked(id)
	}
	return n
}

// Get returns the snapshot stored under (kind, namespace, name).
func (st *Store) Get(kind, namespace, name string) (snapshot.Snapshot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.resources[snapshot.ResourceID{Kind: kind, Namespace: namespace, Name: name}]
	if !ok {
		return snapshot.Snapshot{}, false
	}
	return s.Clone(), true
}

// GetByKind returns every resource of kind.
func (st *Store) GetByKind(kind string) []snapshot.Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.collectLocked(st.kindIndex[kind])
}

// GetByNamespace returns every resource in namespace. An empty namespace
// selects cluster-scoped resources.
func (st *Store) GetByNamespace(namespace string) []snapshot.Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.collectLocked(st.namespaceIndex[namespace])
}

// GetAll returns every stored resource.
func (st *Store) GetAll() []snapshot.Snapshot {
	return st.GetByFilter(nil)
}

// GetByFilter returns the resources for which keep returns true. A nil keep
// selects everything.
func (st *Store) GetByFilter(keep func(snapshot.Snapshot) bool) []snapshot.Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]snapshot.Snapshot, 0, len(st.resources))
	for _, s := range st.resources {
		if keep == nil || keep(s) {
			out = append(out, s.Clone())
		}
	}
	sortSnapshots(out)
	return out
}

// GetUnhealthy returns every resource matching snapshot.IsUnhealthy.
func (st *Store) GetUnhealthy() []snapshot.Snapshot {
	return st.GetByFilter(snapshot.IsUnhealthy)
}

// Count returns the total number of stored resources.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.resources)
}

// CountByKind returns the number of stored resources per kind. Kinds with no
// resources are absent.
func (st *Store) CountByKind() map[string]int {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make(map[string]int, len(st.kindIndex))
	for kind, ids := range st.kindIndex {
		out[kind] = len(ids)
	}
	return out
}

// HashByKind folds the sorted name:phase pairs of kind into a 32-bit rolling
// hash. It is only meant for change detection; an empty kind hashes to 0.
func (st *Store) HashByKind(kind string) uint32 {
	st.mu.RLock()
	pairs := make([]string, 0, len(st.kindIndex[kind]))
	for id := range st.kindIndex[kind] {
		s := st.resources[id]
		pairs = append(pairs, s.Name+":"+s.Phase)
	}
	st.mu.RUnlock()

	sort.Strings(pairs)
	var h uint32
	for _, b := range []byte(strings.Join(pairs, "|")) {
		h = h*31 + uint32(b)
	}
	return h
}

// ReconcileKind removes every resource of kind whose "namespace/name" key is
// not in active, and returns the number removed.
func (st *Store) ReconcileKind(kind string, active map[string]struct{}) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	var stale []snapshot.ResourceID
	for id := range st.kindIndex[kind] {
		if _, ok := active[id.ObjectKey()]; !ok {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		st.deleteLocked(id)
	}
	return len(stale)
}

// Internal methods (must be called with lock held)

func (st *Store) deleteLocked(id snapshot.ResourceID) bool {
	if _, ok := st.resources[id]; !ok {
		return false
	}
	delete(st.resources, id)
	removeIndex(st.kindIndex, id.Kind, id)
	removeIndex(st.namespaceIndex, id.Namespace, id)
	return true
}

func (st *Store) collectLocked(ids map[snapshot.ResourceID]struct{}) []snapshot.Snapshot {
	out := make([]snapshot.Snapshot, 0, len(ids))
	for id := range ids {
		out = append(out, st.resources[id].Clone())
	}
	sortSnapshots(out)
	return out
}

func addIndex(index map[string]map[snapshot.ResourceID]struct{}, key string, id snapshot.ResourceID) {
	set, ok := index[key]
	if !ok {
		set = make(map[snapshot.ResourceID]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeIndex(index map[string]map[snapshot.ResourceID]struct{}, key string, id snapshot.ResourceID) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, key)
	}
}

func sortSnapshots(list []snapshot.Snapshot) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Name < b.Name
	})
}
