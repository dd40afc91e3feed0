package snapshot

import (
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/cache"
)

// ErrUnsupportedKind is returned by Extract for kinds without an extractor.
var ErrUnsupportedKind = errors.New("unsupported resource kind")

// Supported reports whether kind has an extractor.
func Supported(kind string) bool {
	switch kind {
	case KindPod, KindDeployment, KindNode:
		return true
	}
	return false
}

// Extract dispatches obj to the extractor for kind. obj may be the typed API
// struct (pointer or value), an *unstructured.Unstructured, a decoded JSON
// map, or a cache.DeletedFinalStateUnknown tombstone wrapping any of those.
func Extract(kind string, obj any) (Snapshot, error) {
	obj = unwrapTombstone(obj)
	switch kind {
	case KindPod:
		pod, err := convert(obj, lenientPod)
		if err != nil {
			return Snapshot{}, fmt.Errorf("extract %s: %w", kind, err)
		}
		return ExtractPod(pod), nil
	case KindDeployment:
		d, err := convert(obj, lenientDeployment)
		if err != nil {
			return Snapshot{}, fmt.Errorf("extract %s: %w", kind, err)
		}
		return ExtractDeployment(d), nil
	case KindNode:
		n, err := convert(obj, lenientNode)
		if err != nil {
			return Snapshot{}, fmt.Errorf("extract %s: %w", kind, err)
		}
		return ExtractNode(n), nil
	default:
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
}

// IDOf reads the namespace and name of obj without running a full extraction.
// It is what DELETED events use, since the final object state may be partial.
func IDOf(kind string, obj any) (ResourceID, error) {
	if tomb, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		if tomb.Obj == nil {
			ns, name, err := cache.SplitMetaNamespaceKey(tomb.Key)
			if err != nil {
				return ResourceID{}, err
			}
			return ResourceID{Kind: kind, Namespace: ns, Name: name}, nil
		}
		obj = tomb.Obj
	}
	if m, ok := obj.(map[string]any); ok {
		obj = &unstructured.Unstructured{Object: m}
	}
	accessor, err := meta.Accessor(obj)
	if err != nil {
		return ResourceID{}, fmt.Errorf("read metadata of %s: %w", kind, err)
	}
	return ResourceID{Kind: kind, Namespace: accessor.GetNamespace(), Name: accessor.GetName()}, nil
}

func unwrapTombstone(obj any) any {
	if tomb, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		return tomb.Obj
	}
	return obj
}

func convert[T any](obj any, lenient func(map[string]any) (*T, error)) (*T, error) {
	switch o := obj.(type) {
	case *T:
		if o == nil {
			return nil, errors.New("nil object")
		}
		return o, nil
	case T:
		return &o, nil
	case *unstructured.Unstructured:
		if o == nil {
			return nil, errors.New("nil object")
		}
		return fromUnstructured(o.UnstructuredContent(), lenient)
	case map[string]any:
		return fromUnstructured(o, lenient)
	case nil:
		return nil, errors.New("nil object")
	default:
		return nil, fmt.Errorf("unexpected payload type %T", obj)
	}
}

// fromUnstructured converts content strictly and, when a field has the wrong
// type, retries with lenient, which reads field by field and defaults
// whatever it cannot read.
func fromUnstructured[T any](content map[string]any, lenient func(map[string]any) (*T, error)) (*T, error) {
	out := new(T)
	strictErr := runtime.DefaultUnstructuredConverter.FromUnstructured(content, out)
	if strictErr == nil {
		return out, nil
	}
	out, err := lenient(content)
	if err != nil {
		return nil, fmt.Errorf("%w (strict conversion: %v)", err, strictErr)
	}
	return out, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func orUnknown(phase string) string {
	if phase == "" {
		return PhaseUnknown
	}
	return phase
}

func quantityString(list corev1.ResourceList, name corev1.ResourceName) string {
	q, ok := list[name]
	if !ok || q.IsZero() {
		return ""
	}
	return q.String()
}
