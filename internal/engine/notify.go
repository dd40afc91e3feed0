package engine

import (
	"sync"

	"github.com/kubilitics/kubilitics-context/internal/anomaly"
	"github.com/kubilitics/kubilitics-context/internal/metrics"
)

// GlobalUpdate is the update key sent after a full reset.
const GlobalUpdate = "*"

const defaultSubscriptionBuffer = 64

// Subscription receives engine notifications. Updates carries the kind that
// changed, or GlobalUpdate. Delivery never blocks the engine: when a buffer is
// full the notification is dropped.
type Subscription struct {
	Updates   <-chan string
	Anomalies <-chan anomaly.Anomaly

	updates   chan string
	anomalies chan anomaly.Anomaly
}

type hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber with the given per-channel buffer size.
func (e *Engine) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	updates := make(chan string, buffer)
	anomalies := make(chan anomaly.Anomaly, buffer)
	sub := &Subscription{
		Updates:   updates,
		Anomalies: anomalies,
		updates:   updates,
		anomalies: anomalies,
	}

	e.hub.mu.Lock()
	e.hub.subs[sub] = struct{}{}
	e.hub.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channels. It is safe to call more
// than once.
func (e *Engine) Unsubscribe(sub *Subscription) {
	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()
	if _, ok := e.hub.subs[sub]; !ok {
		return
	}
	delete(e.hub.subs, sub)
	close(sub.updates)
	close(sub.anomalies)
}

func (h *hub) publishUpdate(kind string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.updates <- kind:
		default:
			metrics.DroppedNotificationsTotal.WithLabelValues("updates").Inc()
		}
	}
}

func (h *hub) publishAnomaly(a anomaly.Anomaly) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.anomalies <- a:
		default:
			metrics.DroppedNotificationsTotal.WithLabelValues("anomalies").Inc()
		}
	}
}
