// Package watch streams Pod, Deployment and Node events from the API server
// into the context engine. Each kind runs its own list-then-watch loop; a
// re-list is replayed as ADDED events after the engine has been told to
// reconcile the kind, so deletions missed while disconnected are repaired.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	k8swatch "k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/kubilitics/kubilitics-context/internal/metrics"
	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

// ErrWatchClosed is returned when the server closes a watch stream.
var ErrWatchClosed = errors.New("watch channel closed")

// Handler receives events. *engine.Engine satisfies it.
type Handler interface {
	HandleResourceEvent(kind, eventType string, obj any)
	BeginReconciliation(kind string)
}

// DefaultKinds are watched when no kinds are configured.
var DefaultKinds = []string{snapshot.KindPod, snapshot.KindDeployment, snapshot.KindNode}

// DefaultBackoff paces restarts after errors.
var DefaultBackoff = wait.Backoff{
	Duration: 500 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    10,
	Cap:      30 * time.Second,
}

// Source runs one list/watch loop per kind.
type Source struct {
	handler   Handler
	namespace string
	kinds     []string
	logger    *zap.Logger
	backoff   wait.Backoff

	mu      sync.Mutex
	client  kubernetes.Interface
	gens    map[string]uint64
	cancels map[string]context.CancelFunc
}

// Option configures a Source.
type Option func(*Source)

// WithNamespace restricts namespaced kinds to one namespace. Nodes are
// always watched cluster-wide.
func WithNamespace(ns string) Option {
	return func(s *Source) { s.namespace = ns }
}

// WithKinds sets the kinds to watch.
func WithKinds(kinds ...string) Option {
	return func(s *Source) {
		if len(kinds) > 0 {
			s.kinds = kinds
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBackoff sets the restart backoff.
func WithBackoff(b wait.Backoff) Option {
	return func(s *Source) { s.backoff = b }
}

// New creates a source delivering events from client to h.
func New(client kubernetes.Interface, h Handler, opts ...Option) (*Source, error) {
	s := &Source{
		client:  client,
		handler: h,
		kinds:   DefaultKinds,
		logger:  zap.NewNop(),
		backoff: DefaultBackoff,
		gens:    make(map[string]uint64),
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, kind := range s.kinds {
		if !snapshot.Supported(kind) {
			return nil, fmt.Errorf("%w: %q", snapshot.ErrUnsupportedKind, kind)
		}
	}
	return s, nil
}

// Run watches every kind until ctx is cancelled.
func (s *Source) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range s.kinds {
		kind := kind
		g.Go(func() error {
			s.runKind(ctx, kind)
			return nil
		})
	}
	return g.Wait()
}

// Prime lists every kind once and delivers the result, without watching.
func (s *Source) Prime(ctx context.Context) error {
	for _, kind := range s.kinds {
		gen := s.generation(kind)
		if _, err := s.relist(ctx, kind, gen); err != nil {
			return err
		}
	}
	return nil
}

// Restart drops the current stream of kind. Events still in flight from it
// are discarded and the kind is re-listed.
func (s *Source) Restart(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartLocked(kind)
}

// RestartAll restarts every kind.
func (s *Source) RestartAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range s.kinds {
		s.restartLocked(kind)
	}
}

// SwitchClient replaces the cluster connection and restarts every kind.
// reset, when non-nil, runs after the old streams are superseded and before
// any event from the new cluster can be delivered.
func (s *Source) SwitchClient(client kubernetes.Interface, reset func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
	for _, kind := range s.kinds {
		s.restartLocked(kind)
	}
	if reset != nil {
		reset()
	}
}

func (s *Source) restartLocked(kind string) {
	s.gens[kind]++
	if cancel, ok := s.cancels[kind]; ok {
		cancel()
		delete(s.cancels, kind)
	}
}

func (s *Source) generation(kind string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[kind]
}

// begin starts a new stream for kind and returns its generation and context.
func (s *Source) begin(ctx context.Context, kind string) (uint64, context.Context, context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[kind]++
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancels[kind] = cancel
	return s.gens[kind], streamCtx, cancel
}

// deliver forwards an event unless its stream has been superseded. The lock
// is held across the call so nothing stale slips through after Restart
// returns.
func (s *Source) deliver(kind string, gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[kind] != gen {
		return false
	}
	fn()
	return true
}

func (s *Source) runKind(ctx context.Context, kind string) {
	backoff := s.backoff
	for {
		gen, streamCtx, cancel := s.begin(ctx, kind)
		err := s.listAndWatch(streamCtx, kind, gen)
		superseded := streamCtx.Err() != nil
		cancel()
		if ctx.Err() != nil {
			return
		}

		reason := "error"
		switch {
		case superseded:
			reason = "restart"
		case errors.Is(err, ErrWatchClosed):
			reason = "closed"
		}
		metrics.WatchRestartsTotal.WithLabelValues(kind, reason).Inc()

		if reason == "restart" {
			backoff = s.backoff
			s.logger.Info("Watch restarted", zap.String("kind", kind))
			continue
		}
		if reason == "closed" {
			backoff = s.backoff
		}
		delay := backoff.Step()
		s.logger.Warn("Watch interrupted; restarting",
			zap.String("kind", kind), zap.String("reason", reason),
			zap.Duration("delay", delay), zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Source) listAndWatch(ctx context.Context, kind string, gen uint64) error {
	rv, err := s.relist(ctx, kind, gen)
	if err != nil {
		return err
	}

	w, err := s.watch(ctx, kind, rv)
	if err != nil {
		return fmt.Errorf("watch %s: %w", kind, err)
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.ResultChan():
			if !ok {
				return ErrWatchClosed
			}
			var eventType string
			switch ev.Type {
			case k8swatch.Added:
				eventType = "ADDED"
			case k8swatch.Modified:
				eventType = "MODIFIED"
			case k8swatch.Deleted:
				eventType = "DELETED"
			case k8swatch.Bookmark:
				continue
			case k8swatch.Error:
				return fmt.Errorf("watch %s: %w", kind, apierrors.FromObject(ev.Object))
			default:
				continue
			}
			obj := ev.Object
			if !s.deliver(kind, gen, func() { s.handler.HandleResourceEvent(kind, eventType, obj) }) {
				return ctx.Err()
			}
		}
	}
}

// relist lists kind, enters reconciliation and replays every item as ADDED.
// It returns the list resourceVersion to watch from.
func (s *Source) relist(ctx context.Context, kind string, gen uint64) (string, error) {
	items, rv, err := s.list(ctx, kind)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", kind, err)
	}
	s.deliver(kind, gen, func() {
		s.handler.BeginReconciliation(kind)
		for _, item := range items {
			s.handler.HandleResourceEvent(kind, "ADDED", item)
		}
	})
	s.logger.Debug("Listed resources", zap.String("kind", kind), zap.Int("count", len(items)),
		zap.String("resource_version", rv))
	return rv, nil
}

func (s *Source) clientset() kubernetes.Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Source) list(ctx context.Context, kind string) ([]runtime.Object, string, error) {
	client := s.clientset()
	opts := metav1.ListOptions{}
	switch kind {
	case snapshot.KindPod:
		list, err := client.CoreV1().Pods(s.namespace).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.ResourceVersion, nil
	case snapshot.KindDeployment:
		list, err := client.AppsV1().Deployments(s.namespace).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.ResourceVersion, nil
	case snapshot.KindNode:
		list, err := client.CoreV1().Nodes().List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.ResourceVersion, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", snapshot.ErrUnsupportedKind, kind)
	}
}

func (s *Source) watch(ctx context.Context, kind, resourceVersion string) (k8swatch.Interface, error) {
	client := s.clientset()
	opts := metav1.ListOptions{ResourceVersion: resourceVersion, AllowWatchBookmarks: true}
	switch kind {
	case snapshot.KindPod:
		return client.CoreV1().Pods(s.namespace).Watch(ctx, opts)
	case snapshot.KindDeployment:
		return client.AppsV1().Deployments(s.namespace).Watch(ctx, opts)
	case snapshot.KindNode:
		return client.CoreV1().Nodes().Watch(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %q", snapshot.ErrUnsupportedKind, kind)
	}
}
