// Package injector renders store contents as compact, token-budgeted text for
// AI prompt context.
package injector

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/kubilitics/kubilitics-context/internal/snapshot"
	"github.com/kubilitics/kubilitics-context/internal/store"
)

const (
	// DefaultTokenBudget is the chat budget used when none is configured.
	DefaultTokenBudget = 2000

	// SummaryTokenBudget is the fixed budget of BuildSummaryContext.
	SummaryTokenBudget = 500
)

var kindKeywords = []struct {
	kind     string
	keywords []string
}{
	{snapshot.KindPod, []string{"pod", "container", "crash", "restart", "oom", "image", "log"}},
	{snapshot.KindDeployment, []string{"deployment", "deploy", "replica", "rollout", "scale"}},
	{snapshot.KindNode, []string{"node", "kubelet", "capacity", "pressure", "cordon", "taint"}},
}

var problemKeywords = []string{
	"fail", "error", "crash", "wrong", "issue", "problem", "broken", "unhealthy",
	"down", "not ready", "pending", "oom", "restart", "stuck", "why", "debug",
	"troubleshoot", "degraded", "unavailable",
}

// ChatQuery narrows the resources considered for chat context. Zero values
// mean "no restriction".
type ChatQuery struct {
	ResourceTypes []string `json:"resourceTypes,omitempty"`
	Namespaces    []string `json:"namespaces,omitempty"`
	UnhealthyOnly bool     `json:"unhealthyOnly,omitempty"`
	// MaxTokens overrides the configured budget for one call when positive.
	MaxTokens int `json:"maxTokens,omitempty"`
}

// Injector builds prompt context from a store.
type Injector struct {
	store *store.Store

	mu     sync.RWMutex
	budget int
}

// New returns an injector reading from st. A non-positive budget selects
// DefaultTokenBudget.
func New(st *store.Store, budget int) *Injector {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &Injector{store: st, budget: budget}
}

// SetTokenBudget changes the default chat budget. Non-positive values are
// ignored.
func (in *Injector) SetTokenBudget(n int) {
	if n <= 0 {
		return
	}
	in.mu.Lock()
	in.budget = n
	in.mu.Unlock()
}

// TokenBudget returns the current default chat budget.
func (in *Injector) TokenBudget() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.budget
}

// BuildChatContext selects resources for message and renders them, unhealthy
// first, within the token budget. Explicit q.ResourceTypes win over kinds
// inferred from message; with neither, every resource is a candidate.
func (in *Injector) BuildChatContext(message string, q *ChatQuery) string {
	if q == nil {
		q = &ChatQuery{}
	}
	kinds := q.ResourceTypes
	if len(kinds) == 0 {
		kinds = InferResourceTypes(message)
	}

	var candidates []snapshot.Snapshot
	if len(kinds) == 0 {
		candidates = in.store.GetAll()
	} else {
		for _, k := range dedupe(kinds) {
			candidates = append(candidates, in.store.GetByKind(k)...)
		}
	}

	namespaces := toSet(q.Namespaces)
	filtered := candidates[:0]
	for _, s := range candidates {
		if len(namespaces) > 0 {
			if _, ok := namespaces[s.Namespace]; !ok {
				continue
			}
		}
		if q.UnhealthyOnly && !snapshot.IsUnhealthy(s) {
			continue
		}
		filtered = append(filtered, s)
	}

	budget := q.MaxTokens
	if budget <= 0 {
		budget = in.TokenBudget()
	}
	return render(filtered, budget)
}

// BuildSummaryContext renders every resource of kind, optionally limited to
// one namespace, within SummaryTokenBudget.
func (in *Injector) BuildSummaryContext(kind, namespace string) string {
	resources := in.store.GetByKind(kind)
	if namespace != "" {
		kept := resources[:0]
		for _, s := range resources {
			if s.Namespace == namespace {
				kept = append(kept, s)
			}
		}
		resources = kept
	}
	return render(resources, SummaryTokenBudget)
}

// render orders resources unhealthy first and appends lines while they fit.
// The first line is always emitted.
func render(resources []snapshot.Snapshot, budget int) string {
	sort.SliceStable(resources, func(i, j int) bool {
		return snapshot.IsUnhealthy(resources[i]) && !snapshot.IsUnhealthy(resources[j])
	})

	lines := make([]string, 0, len(resources))
	used := 0
	for _, s := range resources {
		line := CompressResource(s)
		cost := EstimateTokens(line + "\n")
		if len(lines) > 0 && used+cost > budget {
			break
		}
		lines = append(lines, line)
		used += cost
	}
	return strings.Join(lines, "\n")
}

// CompressResource renders s as a single line:
//
//	[kind] name ns=.. phase=.. ready=.. restarts=.. ready=r/d unavailable=u cpu-req=.. mem-req=.. warn=a,b
//
// Optional fields are omitted when empty or zero.
func CompressResource(s snapshot.Snapshot) string {
	var b strings.Builder
	b.WriteString("[" + clean(s.Kind) + "] " + clean(s.Name))
	if s.Namespace != "" {
		b.WriteString(" ns=" + clean(s.Namespace))
	}
	phase := s.Phase
	if phase == "" {
		phase = snapshot.PhaseUnknown
	}
	b.WriteString(" phase=" + clean(phase))
	b.WriteString(" ready=" + strconv.FormatBool(s.Ready))
	if s.RestartCount > 0 {
		b.WriteString(" restarts=" + strconv.Itoa(s.RestartCount))
	}
	if r := s.Replicas; r != nil {
		b.WriteString(" ready=" + strconv.Itoa(r.Ready) + "/" + strconv.Itoa(r.Desired))
		b.WriteString(" unavailable=" + strconv.Itoa(r.Unavailable))
	}
	if u := s.ResourceUsage; u != nil {
		if u.CPURequests != "" {
			b.WriteString(" cpu-req=" + clean(u.CPURequests))
		}
		if u.MemoryRequests != "" {
			b.WriteString(" mem-req=" + clean(u.MemoryRequests))
		}
	}
	if len(s.Warnings) > 0 {
		warnings := make([]string, len(s.Warnings))
		for i, w := range s.Warnings {
			warnings[i] = clean(w)
		}
		b.WriteString(" warn=" + strings.Join(warnings, ","))
	}
	return b.String()
}

var cleaner = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "{", "", "}", "")

func clean(s string) string {
	return cleaner.Replace(s)
}

// EstimateTokens approximates token cost as ceil(length/4), where length
// counts UTF-16 code units, so characters outside the BMP count twice.
func EstimateTokens(text string) int {
	return (len(utf16.Encode([]rune(text))) + 3) / 4
}

// InferResourceTypes returns the kinds whose keywords appear in message, in
// Pod, Deployment, Node order.
func InferResourceTypes(message string) []string {
	m := strings.ToLower(message)
	var kinds []string
	for _, entry := range kindKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(m, kw) {
				kinds = append(kinds, entry.kind)
				break
			}
		}
	}
	return kinds
}

// IsProblemQuery reports whether message reads like a troubleshooting question.
func IsProblemQuery(message string) bool {
	m := strings.ToLower(message)
	for _, kw := range problemKeywords {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
