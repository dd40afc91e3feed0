package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kubilitics/kubilitics-context/internal/metrics"
	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

// Stat box colors.
const (
	ColorBlue   = "blue"
	ColorGreen  = "green"
	ColorYellow = "yellow"
	ColorRed    = "red"
	ColorGray   = "gray"
)

const (
	maxNamedPerIssue = 3
	topRestartPods   = 5
)

// Stat is one labelled number on a dashboard.
type Stat struct {
	Label string `json:"label"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// ViewSummary is the structured digest of one kind, optionally scoped to a
// namespace. FromCache is set on read and never stored.
type ViewSummary struct {
	Text      string   `json:"text"`
	Stats     []Stat   `json:"stats"`
	Issues    []string `json:"issues"`
	FromCache bool     `json:"fromCache"`
}

func (v ViewSummary) clone() ViewSummary {
	out := v
	out.Stats = append([]Stat(nil), v.Stats...)
	out.Issues = append([]string(nil), v.Issues...)
	return out
}

// GetSummary returns the summary of kind in namespace (all namespaces when
// empty). It returns nil when summaries are disabled. A cached summary is
// reused while the kind's content hash is unchanged.
func (e *Engine) GetSummary(kind, namespace string) *ViewSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.SummariesEnabled {
		return nil
	}

	key := cacheKey(kind, namespace)
	hash := e.store.HashByKind(kind)
	if cached, ok := e.cache.get(key, hash); ok {
		metrics.SummaryCacheHits.Inc()
		out := cached.clone()
		out.FromCache = true
		return &out
	}

	metrics.SummaryCacheMisses.Inc()
	resources := e.store.GetByKind(kind)
	if namespace != "" {
		kept := resources[:0]
		for _, s := range resources {
			if s.Namespace == namespace {
				kept = append(kept, s)
			}
		}
		resources = kept
	}
	built := buildSummary(kind, namespace, resources)
	e.cache.put(key, hash, built)

	out := built.clone()
	return &out
}

func buildSummary(kind, namespace string, resources []snapshot.Snapshot) ViewSummary {
	unhealthy := 0
	for _, s := range resources {
		if snapshot.IsUnhealthy(s) {
			unhealthy++
		}
	}

	summary := ViewSummary{
		Text:  summaryText(kind, namespace, resources, unhealthy),
		Stats: kindStats(kind, resources, unhealthy),
	}

	issues, named := warningIssues(resources, namespace == "")
	switch kind {
	case snapshot.KindPod:
		issues = append(issues, restartIssues(resources, named, namespace == "")...)
	case snapshot.KindDeployment:
		for _, s := range resources {
			if r := s.Replicas; r != nil && (r.Unavailable > 0 || r.Ready < r.Desired) {
				issues = append(issues, fmt.Sprintf("%s: %d/%d ready", displayName(s, namespace == ""), r.Ready, r.Desired))
			}
		}
	case snapshot.KindNode:
		for _, s := range resources {
			if !s.Ready {
				issues = append(issues, s.Name+" is NotReady")
			}
			for _, w := range s.Warnings {
				if strings.HasSuffix(w, "Pressure") {
					issues = append(issues, s.Name+" has "+w)
				}
			}
		}
	}
	summary.Issues = issues
	return summary
}

func summaryText(kind, namespace string, resources []snapshot.Snapshot, unhealthy int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", len(resources), plural(kind, len(resources)))
	if namespace != "" {
		fmt.Fprintf(&b, " in %s", namespace)
	}
	if len(resources) == 0 {
		b.WriteString(".")
		return b.String()
	}

	counts := phaseCounts(resources)
	parts := make([]string, 0, len(counts))
	for _, pc := range counts {
		parts = append(parts, fmt.Sprintf("%d %s", pc.count, pc.phase))
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	if unhealthy == 0 {
		b.WriteString("; all healthy.")
	} else {
		fmt.Fprintf(&b, "; %d need attention.", unhealthy)
	}
	return b.String()
}

type phaseCount struct {
	phase string
	count int
}

// phaseCounts returns phases ordered by count descending, then name.
func phaseCounts(resources []snapshot.Snapshot) []phaseCount {
	byPhase := make(map[string]int)
	for _, s := range resources {
		phase := s.Phase
		if phase == "" {
			phase = snapshot.PhaseUnknown
		}
		byPhase[phase]++
	}
	out := make([]phaseCount, 0, len(byPhase))
	for phase, n := range byPhase {
		out = append(out, phaseCount{phase: phase, count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].phase < out[j].phase
	})
	return out
}

func kindStats(kind string, resources []snapshot.Snapshot, unhealthy int) []Stat {
	total := Stat{Label: "Total", Value: len(resources), Color: ColorBlue}
	count := func(pred func(snapshot.Snapshot) bool) int {
		n := 0
		for _, s := range resources {
			if pred(s) {
				n++
			}
		}
		return n
	}

	switch kind {
	case snapshot.KindPod:
		running := count(func(s snapshot.Snapshot) bool { return s.Phase == "Running" && s.Ready })
		pending := count(func(s snapshot.Snapshot) bool { return s.Phase == "Pending" })
		restarting := count(func(s snapshot.Snapshot) bool { return s.RestartCount > 0 })
		return []Stat{
			total,
			{Label: "Running", Value: running, Color: ColorGreen},
			alertStat("Pending", pending, ColorYellow),
			alertStat("Unhealthy", unhealthy, ColorRed),
			alertStat("Restarting", restarting, ColorYellow),
		}
	case snapshot.KindDeployment:
		available := count(func(s snapshot.Snapshot) bool { return s.Phase == snapshot.PhaseAvailable })
		degraded := count(func(s snapshot.Snapshot) bool {
			return s.Phase == snapshot.PhaseDegraded || s.Phase == snapshot.PhaseProgressing
		})
		unavailable := count(func(s snapshot.Snapshot) bool { return s.Phase == snapshot.PhaseUnavailable })
		return []Stat{
			total,
			{Label: "Available", Value: available, Color: ColorGreen},
			alertStat("Degraded", degraded, ColorYellow),
			alertStat("Unavailable", unavailable, ColorRed),
		}
	case snapshot.KindNode:
		ready := count(func(s snapshot.Snapshot) bool { return s.Ready })
		pressure := count(func(s snapshot.Snapshot) bool {
			for _, w := range s.Warnings {
				if strings.HasSuffix(w, "Pressure") {
					return true
				}
			}
			return false
		})
		return []Stat{
			total,
			{Label: "Ready", Value: ready, Color: ColorGreen},
			alertStat("NotReady", len(resources)-ready, ColorRed),
			alertStat("Pressure", pressure, ColorYellow),
		}
	default:
		return []Stat{
			total,
			{Label: "Healthy", Value: len(resources) - unhealthy, Color: ColorGreen},
			alertStat("Unhealthy", unhealthy, ColorRed),
		}
	}
}

// alertStat is colored only when there is something to alert on.
func alertStat(label string, value int, color string) Stat {
	if value == 0 {
		color = ColorGray
	}
	return Stat{Label: label, Value: value, Color: color}
}

// warningIssues groups resources by warning text. Groups are ordered by size,
// then text. It also returns the names that were listed explicitly.
func warningIssues(resources []snapshot.Snapshot, qualify bool) ([]string, map[string]bool) {
	groups := make(map[string][]string)
	var order []string
	for _, s := range resources {
		seen := make(map[string]bool, len(s.Warnings))
		for _, w := range s.Warnings {
			if seen[w] {
				continue
			}
			seen[w] = true
			if _, ok := groups[w]; !ok {
				order = append(order, w)
			}
			groups[w] = append(groups[w], displayName(s, qualify))
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return len(groups[order[i]]) > len(groups[order[j]])
	})

	named := make(map[string]bool)
	issues := make([]string, 0, len(order))
	for _, w := range order {
		names := groups[w]
		switch {
		case len(names) == 1:
			issues = append(issues, fmt.Sprintf("%s: %s", names[0], w))
			named[names[0]] = true
		case len(names) <= maxNamedPerIssue:
			issues = append(issues, fmt.Sprintf("%s: %s", w, strings.Join(names, ", ")))
			for _, n := range names {
				named[n] = true
			}
		default:
			issues = append(issues, fmt.Sprintf("%s: %d resources", w, len(names)))
		}
	}
	return issues, named
}

// restartIssues lists the pods with the most restarts that no other issue
// already names.
func restartIssues(pods []snapshot.Snapshot, named map[string]bool, qualify bool) []string {
	ranked := make([]snapshot.Snapshot, 0, len(pods))
	for _, s := range pods {
		if s.RestartCount > 0 {
			ranked = append(ranked, s)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RestartCount > ranked[j].RestartCount
	})
	if len(ranked) > topRestartPods {
		ranked = ranked[:topRestartPods]
	}

	var out []string
	for _, s := range ranked {
		name := displayName(s, qualify)
		if named[name] {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %d restarts", name, s.RestartCount))
	}
	return out
}

func displayName(s snapshot.Snapshot, qualify bool) string {
	if qualify && s.Namespace != "" {
		return s.Namespace + "/" + s.Name
	}
	return s.Name
}

func plural(kind string, n int) string {
	word := strings.ToLower(kind)
	if word == "" {
		word = "resource"
	}
	if n == 1 {
		return word
	}
	return word + "s"
}
