// Package engine composes the store, anomaly detector and context injector
// into the cluster context engine. It ingests resource lifecycle events,
// repairs drift after watch restarts and serves cached view summaries.
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/kubilitics/kubilitics-context/internal/anomaly"
	"github.com/kubilitics/kubilitics-context/internal/injector"
	"github.com/kubilitics/kubilitics-context/internal/metrics"
	"github.com/kubilitics/kubilitics-context/internal/store"
)

// Event types accepted by HandleResourceEvent.
const (
	EventAdded    = "ADDED"
	EventModified = "MODIFIED"
	EventDeleted  = "DELETED"
)

const (
	// DefaultReconcileDelay is the idle time after the last ADDED event
	// before a reconciling kind is pruned.
	DefaultReconcileDelay = 2 * time.Second

	// DefaultSummaryCacheSize bounds the number of cached view summaries.
	DefaultSummaryCacheSize = 128
)

// Config is the runtime-mutable engine configuration.
type Config struct {
	TokenBudget             int  `json:"tokenBudget"`
	SummariesEnabled        bool `json:"summariesEnabled"`
	AnomalyDetectionEnabled bool `json:"anomalyDetectionEnabled"`
}

// DefaultConfig returns the configuration used when nothing is supplied.
func DefaultConfig() Config {
	return Config{
		TokenBudget:             injector.DefaultTokenBudget,
		SummariesEnabled:        true,
		AnomalyDetectionEnabled: true,
	}
}

// ConfigPatch is a partial Config; nil fields are left unchanged.
type ConfigPatch struct {
	TokenBudget             *int  `json:"tokenBudget,omitempty"`
	SummariesEnabled        *bool `json:"summariesEnabled,omitempty"`
	AnomalyDetectionEnabled *bool `json:"anomalyDetectionEnabled,omitempty"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	ResourceCount int       `json:"resourceCount"`
	LastUpdate    time.Time `json:"lastUpdate"`
}

// Engine is the cluster context engine. All mutations are serialized.
type Engine struct {
	mu sync.Mutex

	cfg            Config
	logger         *zap.Logger
	clock          clock.WithDelayedExecution
	reconcileDelay time.Duration
	cacheSize      int

	store    *store.Store
	detector *anomaly.Detector
	injector *injector.Injector
	cache    *summaryCache

	reconciling map[string]*reconcileState
	epoch       uint64
	lastUpdate  time.Time

	hub *hub
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the clock driving reconciliation timers and timestamps.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithReconcileDelay sets the reconciliation debounce.
func WithReconcileDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.reconcileDelay = d
		}
	}
}

// WithSummaryCacheSize sets the maximum number of cached summaries.
func WithSummaryCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// New creates an engine with an empty store.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = injector.DefaultTokenBudget
	}
	e := &Engine{
		cfg:            cfg,
		logger:         zap.NewNop(),
		clock:          clock.RealClock{},
		reconcileDelay: DefaultReconcileDelay,
		cacheSize:      DefaultSummaryCacheSize,
		reconciling:    make(map[string]*reconcileState),
		hub:            newHub(),
	}
	for _, opt := range opts {
		opt(e)
	}

	cache, err := newSummaryCache(e.cacheSize)
	if err != nil {
		return nil, err
	}
	e.cache = cache
	e.store = store.New()
	e.detector = anomaly.New(anomaly.WithClock(e.clock))
	e.injector = injector.New(e.store, cfg.TokenBudget)
	return e, nil
}

// UpdateConfig applies patch. A new token budget is used by the very next
// chat context request. Non-positive budgets are ignored.
func (e *Engine) UpdateConfig(patch ConfigPatch) Config {
	e.mu.Lock()
	defer e.mu.Unlock()

	if patch.TokenBudget != nil {
		if *patch.TokenBudget > 0 {
			e.cfg.TokenBudget = *patch.TokenBudget
			e.injector.SetTokenBudget(*patch.TokenBudget)
		} else {
			e.logger.Warn("Ignoring non-positive token budget", zap.Int("token_budget", *patch.TokenBudget))
		}
	}
	if patch.SummariesEnabled != nil {
		e.cfg.SummariesEnabled = *patch.SummariesEnabled
	}
	if patch.AnomalyDetectionEnabled != nil {
		e.cfg.AnomalyDetectionEnabled = *patch.AnomalyDetectionEnabled
	}
	e.logger.Info("Engine configuration updated",
		zap.Int("token_budget", e.cfg.TokenBudget),
		zap.Bool("summaries_enabled", e.cfg.SummariesEnabled),
		zap.Bool("anomaly_detection_enabled", e.cfg.AnomalyDetectionEnabled))
	return e.cfg
}

// GetConfig returns the current configuration.
func (e *Engine) GetConfig() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// GetStatus returns the resource count and the time of the last mutation.
func (e *Engine) GetStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{ResourceCount: e.store.Count(), LastUpdate: e.lastUpdate}
}

// GetStore exposes the underlying store for read access.
func (e *Engine) GetStore() *store.Store {
	return e.store
}

// GetAnomalies returns the currently active anomalies.
func (e *Engine) GetAnomalies() []anomaly.Anomaly {
	e.mu.Lock()
	d := e.detector
	e.mu.Unlock()
	return d.GetActive()
}

// BuildChatContext renders token-budgeted context for a chat message.
func (e *Engine) BuildChatContext(message string, q *injector.ChatQuery) string {
	out := e.injector.BuildChatContext(message, q)
	metrics.ChatContextTokens.Observe(float64(injector.EstimateTokens(out)))
	return out
}

// BuildSummaryContext renders the fixed-budget digest of one kind.
func (e *Engine) BuildSummaryContext(kind, namespace string) string {
	return e.injector.BuildSummaryContext(kind, namespace)
}
