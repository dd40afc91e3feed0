package snapshot

import (
	"errors"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// errNoMetadata marks a payload without a readable name.
var errNoMetadata = errors.New("object has no usable metadata")

// The lenient readers rebuild only the fields the extractors look at. Each
// field is read on its own, so one wrongly typed value falls back to its zero
// value instead of failing the object.

func lenientPod(content map[string]any) (*corev1.Pod, error) {
	om, err := lenientMeta(content)
	if err != nil {
		return nil, err
	}
	pod := &corev1.Pod{ObjectMeta: om}
	pod.Status.Phase = corev1.PodPhase(nestedString(content, "status", "phase"))
	for _, c := range nestedMaps(content, "status", "conditions") {
		pod.Status.Conditions = append(pod.Status.Conditions, corev1.PodCondition{
			Type:    corev1.PodConditionType(nestedString(c, "type")),
			Status:  corev1.ConditionStatus(nestedString(c, "status")),
			Reason:  nestedString(c, "reason"),
			Message: nestedString(c, "message"),
		})
	}
	for _, c := range nestedMaps(content, "status", "containerStatuses") {
		cs := corev1.ContainerStatus{
			Name:         nestedString(c, "name"),
			Ready:        nestedBool(c, "ready"),
			RestartCount: int32(nestedInt(c, "restartCount")),
		}
		if nestedMap(c, "state", "waiting") != nil {
			cs.State.Waiting = &corev1.ContainerStateWaiting{Reason: nestedString(c, "state", "waiting", "reason")}
		}
		if nestedMap(c, "state", "terminated") != nil {
			cs.State.Terminated = &corev1.ContainerStateTerminated{Reason: nestedString(c, "state", "terminated", "reason")}
		}
		if nestedMap(c, "lastState", "terminated") != nil {
			cs.LastTerminationState.Terminated = &corev1.ContainerStateTerminated{
				Reason: nestedString(c, "lastState", "terminated", "reason"),
			}
		}
		pod.Status.ContainerStatuses = append(pod.Status.ContainerStatuses, cs)
	}
	for _, c := range nestedMaps(content, "spec", "containers") {
		pod.Spec.Containers = append(pod.Spec.Containers, corev1.Container{
			Name: nestedString(c, "name"),
			Resources: corev1.ResourceRequirements{
				Requests: nestedResourceList(c, "resources", "requests"),
				Limits:   nestedResourceList(c, "resources", "limits"),
			},
		})
	}
	return pod, nil
}

func lenientDeployment(content map[string]any) (*appsv1.Deployment, error) {
	om, err := lenientMeta(content)
	if err != nil {
		return nil, err
	}
	d := &appsv1.Deployment{ObjectMeta: om}
	if v, ok := nestedIntOK(content, "spec", "replicas"); ok {
		replicas := int32(v)
		d.Spec.Replicas = &replicas
	}
	d.Status.ReadyReplicas = int32(nestedInt(content, "status", "readyReplicas"))
	d.Status.AvailableReplicas = int32(nestedInt(content, "status", "availableReplicas"))
	d.Status.UnavailableReplicas = int32(nestedInt(content, "status", "unavailableReplicas"))
	for _, c := range nestedMaps(content, "status", "conditions") {
		d.Status.Conditions = append(d.Status.Conditions, appsv1.DeploymentCondition{
			Type:    appsv1.DeploymentConditionType(nestedString(c, "type")),
			Status:  corev1.ConditionStatus(nestedString(c, "status")),
			Reason:  nestedString(c, "reason"),
			Message: nestedString(c, "message"),
		})
	}
	return d, nil
}

func lenientNode(content map[string]any) (*corev1.Node, error) {
	om, err := lenientMeta(content)
	if err != nil {
		return nil, err
	}
	n := &corev1.Node{ObjectMeta: om}
	for _, c := range nestedMaps(content, "status", "conditions") {
		n.Status.Conditions = append(n.Status.Conditions, corev1.NodeCondition{
			Type:    corev1.NodeConditionType(nestedString(c, "type")),
			Status:  corev1.ConditionStatus(nestedString(c, "status")),
			Reason:  nestedString(c, "reason"),
			Message: nestedString(c, "message"),
		})
	}
	n.Status.Allocatable = nestedResourceList(content, "status", "allocatable")
	n.Status.Capacity = nestedResourceList(content, "status", "capacity")
	return n, nil
}

func lenientMeta(content map[string]any) (metav1.ObjectMeta, error) {
	accessor, err := meta.Accessor(&unstructured.Unstructured{Object: content})
	if err != nil {
		return metav1.ObjectMeta{}, fmt.Errorf("%w: %v", errNoMetadata, err)
	}
	if accessor.GetName() == "" {
		return metav1.ObjectMeta{}, errNoMetadata
	}
	return metav1.ObjectMeta{
		Name:              accessor.GetName(),
		Namespace:         accessor.GetNamespace(),
		CreationTimestamp: accessor.GetCreationTimestamp(),
	}, nil
}

// The nested* helpers use NestedFieldNoCopy because the deep copy behind
// NestedSlice and NestedMap panics on values that are not JSON-compatible.

func nestedString(m map[string]any, fields ...string) string {
	v, _, err := unstructured.NestedString(m, fields...)
	if err != nil {
		return ""
	}
	return v
}

func nestedBool(m map[string]any, fields ...string) bool {
	v, _, err := unstructured.NestedBool(m, fields...)
	if err != nil {
		return false
	}
	return v
}

func nestedInt(m map[string]any, fields ...string) int64 {
	v, _ := nestedIntOK(m, fields...)
	return v
}

// nestedIntOK accepts the integer types produced by the API machinery and
// whole float64 values produced by encoding/json.
func nestedIntOK(m map[string]any, fields ...string) (int64, bool) {
	v, found, err := unstructured.NestedFieldNoCopy(m, fields...)
	if !found || err != nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func nestedMap(m map[string]any, fields ...string) map[string]any {
	v, found, err := unstructured.NestedFieldNoCopy(m, fields...)
	if !found || err != nil {
		return nil
	}
	out, _ := v.(map[string]any)
	return out
}

func nestedMaps(m map[string]any, fields ...string) []map[string]any {
	v, found, err := unstructured.NestedFieldNoCopy(m, fields...)
	if !found || err != nil {
		return nil
	}
	items, _ := v.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if im, ok := item.(map[string]any); ok {
			out = append(out, im)
		}
	}
	return out
}

// nestedResourceList keeps the cpu and memory entries that parse as
// quantities.
func nestedResourceList(m map[string]any, fields ...string) corev1.ResourceList {
	raw := nestedMap(m, fields...)
	if raw == nil {
		return nil
	}
	list := corev1.ResourceList{}
	for _, name := range []corev1.ResourceName{corev1.ResourceCPU, corev1.ResourceMemory} {
		var text string
		switch v := raw[string(name)].(type) {
		case string:
			text = v
		case int64, int32, int, float64:
			text = fmt.Sprint(v)
		default:
			continue
		}
		q, err := resource.ParseQuantity(text)
		if err != nil {
			continue
		}
		list[name] = q
	}
	return list
}
