// Package snapshot turns raw Kubernetes objects into compact, typed
// status snapshots. Extraction is total: absent or malformed fields fall back
// to defaults instead of failing, so one odd object never poisons the store.
package snapshot

import "fmt"

// Kinds with a dedicated extractor.
const (
	KindPod        = "Pod"
	KindDeployment = "Deployment"
	KindNode       = "Node"
)

// Phases that mark a resource as unhealthy regardless of readiness.
const (
	PhaseFailed           = "Failed"
	PhaseCrashLoopBackOff = "CrashLoopBackOff"
	PhaseNotReady         = "NotReady"
	PhaseUnknown          = "Unknown"
)

// ResourceID uniquely identifies a resource inside the store.
// Namespace is empty for cluster-scoped resources.
type ResourceID struct {
	Kind      string
	Namespace string
	Name      string
}

// String returns kind/namespace/name; the namespace segment is kept even when
// empty so that ids of namespaced and cluster-scoped resources never collide.
func (r ResourceID) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Kind, r.Namespace, r.Name)
}

// ObjectKey returns namespace/name, the form used by reconciliation.
func (r ResourceID) ObjectKey() string {
	return r.Namespace + "/" + r.Name
}

// Condition mirrors a status condition.
type Condition struct {
	Type    string `json:"type" yaml:"type"`
	Status  string `json:"status" yaml:"status"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// ResourceUsage holds raw quantity strings as reported by the API.
type ResourceUsage struct {
	CPURequests    string `json:"cpuRequests,omitempty" yaml:"cpuRequests,omitempty"`
	MemoryRequests string `json:"memoryRequests,omitempty" yaml:"memoryRequests,omitempty"`
	CPULimits      string `json:"cpuLimits,omitempty" yaml:"cpuLimits,omitempty"`
	MemoryLimits   string `json:"memoryLimits,omitempty" yaml:"memoryLimits,omitempty"`
}

// Replicas summarizes workload scaling state.
type Replicas struct {
	Desired     int `json:"desired" yaml:"desired"`
	Ready       int `json:"ready" yaml:"ready"`
	Unavailable int `json:"unavailable" yaml:"unavailable"`
}

// Snapshot is the compact status view of a single resource.
type Snapshot struct {
	Kind          string         `json:"kind" yaml:"kind"`
	Name          string         `json:"name" yaml:"name"`
	Namespace     string         `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Phase         string         `json:"phase" yaml:"phase"`
	Conditions    []Condition    `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	RestartCount  int            `json:"restartCount" yaml:"restartCount"`
	Ready         bool           `json:"ready" yaml:"ready"`
	Age           string         `json:"age,omitempty" yaml:"age,omitempty"`
	ResourceUsage *ResourceUsage `json:"resourceUsage,omitempty" yaml:"resourceUsage,omitempty"`
	Replicas      *Replicas      `json:"replicas,omitempty" yaml:"replicas,omitempty"`
	Warnings      []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// ID returns the store key of the snapshot.
func (s Snapshot) ID() ResourceID {
	return ResourceID{Kind: s.Kind, Namespace: s.Namespace, Name: s.Name}
}

// Clone returns a deep copy so callers can never mutate stored state.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Conditions != nil {
		out.Conditions = append([]Condition(nil), s.Conditions...)
	}
	if s.Warnings != nil {
		out.Warnings = append([]string(nil), s.Warnings...)
	}
	if s.ResourceUsage != nil {
		ru := *s.ResourceUsage
		out.ResourceUsage = &ru
	}
	if s.Replicas != nil {
		r := *s.Replicas
		out.Replicas = &r
	}
	return out
}

// IsUnhealthy reports whether a snapshot deserves attention: not ready, in a
// failure phase, carrying warnings, or with unavailable replicas.
func IsUnhealthy(s Snapshot) bool {
	if !s.Ready {
		return true
	}
	switch s.Phase {
	case PhaseFailed, PhaseCrashLoopBackOff, PhaseNotReady:
		return true
	}
	if len(s.Warnings) > 0 {
		return true
	}
	return s.Replicas != nil && s.Replicas.Unavailable > 0
}
