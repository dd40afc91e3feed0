package engine

import (
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-context/internal/anomaly"
	"github.com/kubilitics/kubilitics-context/internal/metrics"
	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

// HandleResourceEvent applies one lifecycle event from the watch layer.
// Events for kinds without an extractor are ignored. Payloads that cannot be
// extracted are logged and dropped without touching existing state.
func (e *Engine) HandleResourceEvent(kind, eventType string, obj any) {
	if !snapshot.Supported(kind) {
		e.logger.Debug("Ignoring event for unsupported kind",
			zap.String("kind", kind), zap.String("event_type", eventType))
		return
	}
	switch eventType {
	case EventDeleted:
		e.handleDeleted(kind, obj)
	case EventAdded, EventModified:
		e.handleUpsert(kind, eventType, obj)
	default:
		e.logger.Warn("Dropping event with unknown type",
			zap.String("kind", kind), zap.String("event_type", eventType))
		return
	}
	metrics.EventsTotal.WithLabelValues(kind, eventType).Inc()
}

func (e *Engine) handleDeleted(kind string, obj any) {
	id, err := snapshot.IDOf(kind, obj)
	if err != nil {
		metrics.ExtractionFailuresTotal.WithLabelValues(kind).Inc()
		e.logger.Warn("Failed to read deleted resource", zap.String("kind", kind), zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Delete(id.Kind, id.Namespace, id.Name)
	e.detector.ClearForResource(id.Kind, id.Namespace, id.Name)
	e.afterMutationLocked(kind)
}

func (e *Engine) handleUpsert(kind, eventType string, obj any) {
	s, err := snapshot.Extract(kind, obj)
	if err != nil {
		metrics.ExtractionFailuresTotal.WithLabelValues(kind).Inc()
		e.logger.Warn("Failed to extract resource", zap.String("kind", kind),
			zap.String("event_type", eventType), zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Upsert(s)
	if eventType == EventAdded {
		if st, ok := e.reconciling[kind]; ok {
			st.seen[s.ID().ObjectKey()] = struct{}{}
			e.armLocked(kind, st)
		}
	}

	// Clearing first means an anomaly that persists across updates is
	// reported again on every update.
	if e.cfg.AnomalyDetectionEnabled {
		e.detector.ClearForResource(s.Kind, s.Namespace, s.Name)
		for _, a := range e.detector.Evaluate(s) {
			metrics.AnomaliesDetectedTotal.WithLabelValues(a.Type, string(a.Severity)).Inc()
			e.logger.Info("Anomaly detected", zap.String("id", a.ID),
				zap.String("severity", string(a.Severity)), zap.String("message", a.Message))
			e.hub.publishAnomaly(a)
		}
	}
	e.afterMutationLocked(kind)
}

// OnClusterSwitch drops all state. A fresh anomaly detector replaces the old
// one, and pending reconciliation is cancelled.
func (e *Engine) OnClusterSwitch() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for kind := range e.reconciling {
		e.endReconciliationLocked(kind)
	}
	e.store.Clear()
	e.cache.purge()
	e.detector = anomaly.New(anomaly.WithClock(e.clock))
	e.lastUpdate = e.clock.Now()

	metrics.StoreResources.Reset()
	metrics.ActiveAnomalies.Set(0)
	e.logger.Info("Cluster switched; context engine reset")
	e.hub.publishUpdate(GlobalUpdate)
}

// ClearKind removes every resource and anomaly of kind and puts the kind into
// reconciliation mode, so the next burst of ADDED events defines what it
// contains.
func (e *Engine) ClearKind(kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.store.ClearKind(kind)
	e.detector.ClearForKind(kind)
	e.beginReconciliationLocked(kind)
	e.afterMutationLocked(kind)
	e.logger.Info("Cleared resource kind", zap.String("kind", kind), zap.Int("removed", removed))
}

// BeginReconciliation puts kind into reconciliation mode without clearing
// it. Resources not re-announced by an ADDED event before the debounce
// expires are pruned. Watch sources call this before replaying a re-list.
func (e *Engine) BeginReconciliation(kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beginReconciliationLocked(kind)
}

// afterMutationLocked invalidates cached summaries of kind, refreshes gauges
// and notifies subscribers.
func (e *Engine) afterMutationLocked(kind string) {
	e.cache.invalidateKind(kind)
	e.lastUpdate = e.clock.Now()
	e.recordGaugesLocked(kind)
	e.hub.publishUpdate(kind)
}

func (e *Engine) recordGaugesLocked(kind string) {
	metrics.StoreResources.WithLabelValues(kind).Set(float64(e.store.CountByKind()[kind]))
	metrics.ActiveAnomalies.Set(float64(e.detector.Len()))
}
