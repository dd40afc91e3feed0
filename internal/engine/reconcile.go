package engine

import (
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/kubilitics/kubilitics-context/internal/metrics"
)

// task is a cancellable scheduled callback.
type task struct {
	timer clock.Timer
}

func schedule(c clock.WithDelayedExecution, d time.Duration, fn func()) *task {
	return &task{timer: c.AfterFunc(d, fn)}
}

// Cancel stops the task if it has not fired yet.
func (t *task) Cancel() {
	if t != nil && t.timer != nil {
		t.timer.Stop()
	}
}

// reconcileState is the Reconciling state of one kind; a kind without an
// entry is idle. seen holds namespace/name keys announced by ADDED events
// since reconciliation began.
type reconcileState struct {
	seen     map[string]struct{}
	task     *task
	epoch    uint64
	deadline time.Time
}

// beginReconciliationLocked resets any reconciliation of kind and arms the
// debounce, so that a re-list with no items still prunes the kind.
func (e *Engine) beginReconciliationLocked(kind string) {
	e.endReconciliationLocked(kind)
	st := &reconcileState{seen: make(map[string]struct{})}
	e.reconciling[kind] = st
	e.armLocked(kind, st)
	e.logger.Debug("Reconciliation started", zap.String("kind", kind))
}

// armLocked (re)starts the debounce of st. Each arm gets a new epoch so a
// timer that already fired but lost the race for the lock is ignored.
func (e *Engine) armLocked(kind string, st *reconcileState) {
	st.task.Cancel()
	e.epoch++
	epoch := e.epoch
	st.epoch = epoch
	st.deadline = e.clock.Now().Add(e.reconcileDelay)
	st.task = schedule(e.clock, e.reconcileDelay, func() { e.finishReconciliation(kind, epoch) })
}

func (e *Engine) endReconciliationLocked(kind string) {
	if st, ok := e.reconciling[kind]; ok {
		st.task.Cancel()
		delete(e.reconciling, kind)
	}
}

// finishReconciliation runs on the timer goroutine. It must not call into the
// clock: fake clocks invoke it while holding their own lock.
func (e *Engine) finishReconciliation(kind string, epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.reconciling[kind]
	if !ok || st.epoch != epoch {
		return
	}
	delete(e.reconciling, kind)

	removed := e.store.ReconcileKind(kind, st.seen)
	e.detector.ClearForKind(kind)
	e.cache.invalidateKind(kind)
	e.lastUpdate = st.deadline
	e.recordGaugesLocked(kind)
	metrics.ReconcilePrunedTotal.WithLabelValues(kind).Add(float64(removed))

	e.logger.Info("Reconciliation finished", zap.String("kind", kind),
		zap.Int("seen", len(st.seen)), zap.Int("pruned", removed))
	e.hub.publishUpdate(kind)
}

// Reconciling reports whether kind is currently in reconciliation mode.
func (e *Engine) Reconciling(kind string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.reconciling[kind]
	return ok
}
