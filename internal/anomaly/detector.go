// Package anomaly evaluates a fixed set of health rules against resource
// snapshots and tracks which anomalies are currently active.
package anomaly

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

// ─── Public types ─────────────────────────────────────────────────────────────

// Severity classifies anomaly urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Anomaly types. Each rule produces at most one anomaly per resource.
const (
	TypeCrashLoopBackOff      = "CrashLoopBackOff"
	TypeOOMKilled             = "OOMKilled"
	TypeNodeNotReady          = "NodeNotReady"
	TypeDeploymentUnavailable = "DeploymentUnavailable"
	TypeHighRestartCount      = "HighRestartCount"
	TypeOverflowSummary       = "OverflowSummary"
)

const (
	// MaxActive is the number of individual anomalies a detector tracks
	// before it substitutes the overflow sentinel.
	MaxActive = 20

	// OverflowID is the id of the overflow sentinel.
	OverflowID = "__overflow_summary__"

	highRestartThreshold = 5
)

// Anomaly is a detected health issue tied to one resource and one rule.
type Anomaly struct {
	ID         string            `json:"id"`
	Resource   snapshot.Snapshot `json:"resource"`
	Type       string            `json:"type"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	DetectedAt time.Time         `json:"detectedAt"`
}

// ID builds the deterministic id kind/namespace/name/type.
func ID(s snapshot.Snapshot, anomalyType string) string {
	return s.ID().String() + "/" + anomalyType
}

// ─── Rules ────────────────────────────────────────────────────────────────────

type rule struct {
	name     string
	severity Severity
	match    func(s snapshot.Snapshot) (string, bool)
}

// rules run in this order; the order only matters once the cap is reached.
var rules = []rule{
	{
		name:     TypeCrashLoopBackOff,
		severity: SeverityCritical,
		match: func(s snapshot.Snapshot) (string, bool) {
			if s.Kind != snapshot.KindPod || !hasWarning(s, "CrashLoopBackOff") {
				return "", false
			}
			return fmt.Sprintf("Pod %s is in CrashLoopBackOff (%d restarts)", s.Name, s.RestartCount), true
		},
	},
	{
		name:     TypeOOMKilled,
		severity: SeverityCritical,
		match: func(s snapshot.Snapshot) (string, bool) {
			if s.Kind != snapshot.KindPod || !hasWarning(s, "OOMKilled") {
				return "", false
			}
			return fmt.Sprintf("Pod %s was OOMKilled", s.Name), true
		},
	},
	{
		name:     TypeNodeNotReady,
		severity: SeverityCritical,
		match: func(s snapshot.Snapshot) (string, bool) {
			if s.Kind != snapshot.KindNode || s.Phase != snapshot.PhaseNotReady {
				return "", false
			}
			return fmt.Sprintf("Node %s is NotReady", s.Name), true
		},
	},
	{
		name:     TypeDeploymentUnavailable,
		severity: SeverityWarning,
		match: func(s snapshot.Snapshot) (string, bool) {
			if s.Kind != snapshot.KindDeployment || s.Replicas == nil || s.Replicas.Unavailable <= 0 {
				return "", false
			}
			return fmt.Sprintf("Deployment %s has %d/%d replicas unavailable",
				s.Name, s.Replicas.Unavailable, s.Replicas.Desired), true
		},
	},
	{
		name:     TypeHighRestartCount,
		severity: SeverityWarning,
		match: func(s snapshot.Snapshot) (string, bool) {
			if s.Kind != snapshot.KindPod || s.RestartCount <= highRestartThreshold {
				return "", false
			}
			return fmt.Sprintf("Pod %s has restarted %d times", s.Name, s.RestartCount), true
		},
	},
}

func hasWarning(s snapshot.Snapshot, w string) bool {
	for _, got := range s.Warnings {
		if got == w {
			return true
		}
	}
	return false
}

// ─── Detector ─────────────────────────────────────────────────────────────────

// Detector holds the set of active anomalies keyed by id.
type Detector struct {
	mu     sync.RWMutex
	clock  clock.PassiveClock
	active map[string]Anomaly
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock sets the clock used to stamp DetectedAt.
func WithClock(c clock.PassiveClock) Option {
	return func(d *Detector) { d.clock = c }
}

// New creates a detector with no active anomalies.
func New(opts ...Option) *Detector {
	d := &Detector{
		clock:  clock.RealClock{},
		active: make(map[string]Anomaly),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate runs every rule against s and returns only the anomalies that
// were not already active. Once MaxActive anomalies are active the overflow
// sentinel is recorded instead, and it is returned only on the call that
// creates it.
func (d *Detector) Evaluate(s snapshot.Snapshot) []Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	var found []Anomaly
	for _, r := range rules {
		msg, ok := r.match(s)
		if !ok {
			continue
		}
		id := ID(s, r.name)
		if _, exists := d.active[id]; exists {
			continue
		}
		if len(d.active) >= MaxActive {
			if _, exists := d.active[OverflowID]; !exists {
				sentinel := Anomaly{
					ID:         OverflowID,
					Resource:   s.Clone(),
					Type:       TypeOverflowSummary,
					Severity:   SeverityWarning,
					Message:    fmt.Sprintf("More than %d anomalies active; further anomalies are suppressed", MaxActive),
					DetectedAt: now,
				}
				d.active[OverflowID] = sentinel
				found = append(found, sentinel)
			}
			break
		}
		a := Anomaly{
			ID:         id,
			Resource:   s.Clone(),
			Type:       r.name,
			Severity:   r.severity,
			Message:    msg,
			DetectedAt: now,
		}
		d.active[id] = a
		found = append(found, a)
	}
	return found
}

// ClearForResource removes every anomaly of one resource.
func (d *Detector) ClearForResource(kind, namespace, name string) int {
	prefix := snapshot.ResourceID{Kind: kind, Namespace: namespace, Name: name}.String() + "/"
	return d.clearPrefix(prefix)
}

// ClearForKind removes every anomaly of kind.
func (d *Detector) ClearForKind(kind string) int {
	return d.clearPrefix(kind + "/")
}

func (d *Detector) clearPrefix(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id := range d.active {
		if strings.HasPrefix(id, prefix) {
			delete(d.active, id)
			n++
		}
	}
	return n
}

// GetActive returns a copy of the active anomalies, critical first, then by id.
func (d *Detector) GetActive() []Anomaly {
	d.mu.RLock()
	out := make([]Anomaly, 0, len(d.active))
	for _, a := range d.active {
		a.Resource = a.Resource.Clone()
		out = append(out, a)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ri, rj := severityRank(out[i].Severity), severityRank(out[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of active anomalies, sentinel included.
func (d *Detector) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.active)
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}
