package snapshot

import (
	corev1 "k8s.io/api/core/v1"
)

const reasonCompleted = "Completed"

// ExtractPod builds a snapshot from a pod. A nil pod yields the zero-value
// defaults.
//
// Resource usage takes the first non-empty request/limit found across the
// containers rather than a sum, so multi-container pods are understated.
func ExtractPod(pod *corev1.Pod) Snapshot {
	if pod == nil {
		return Snapshot{Kind: KindPod, Phase: PhaseUnknown}
	}
	s := Snapshot{
		Kind:      KindPod,
		Name:      pod.Name,
		Namespace: pod.Namespace,
		Phase:     orUnknown(string(pod.Status.Phase)),
		Age:       formatTimestamp(pod.CreationTimestamp.Time),
	}

	for _, c := range pod.Status.Conditions {
		s.Conditions = append(s.Conditions, Condition{
			Type:    string(c.Type),
			Status:  string(c.Status),
			Reason:  c.Reason,
			Message: c.Message,
		})
	}

	statuses := pod.Status.ContainerStatuses
	allReady := len(statuses) > 0
	for _, cs := range statuses {
		s.RestartCount += int(cs.RestartCount)
		if !cs.Ready {
			allReady = false
		}
		if w := cs.State.Waiting; w != nil {
			s.Warnings = appendReason(s.Warnings, w.Reason)
		}
		if t := cs.State.Terminated; t != nil {
			s.Warnings = appendReason(s.Warnings, t.Reason)
		}
		if t := cs.LastTerminationState.Terminated; t != nil {
			s.Warnings = appendReason(s.Warnings, t.Reason)
		}
	}
	s.Ready = allReady
	s.ResourceUsage = podResourceUsage(pod.Spec.Containers)
	return s
}

func appendReason(warnings []string, reason string) []string {
	if reason == "" || reason == reasonCompleted {
		return warnings
	}
	return append(warnings, reason)
}

func podResourceUsage(containers []corev1.Container) *ResourceUsage {
	var ru ResourceUsage
	for _, c := range containers {
		if ru.CPURequests == "" {
			ru.CPURequests = quantityString(c.Resources.Requests, corev1.ResourceCPU)
		}
		if ru.MemoryRequests == "" {
			ru.MemoryRequests = quantityString(c.Resources.Requests, corev1.ResourceMemory)
		}
		if ru.CPULimits == "" {
			ru.CPULimits = quantityString(c.Resources.Limits, corev1.ResourceCPU)
		}
		if ru.MemoryLimits == "" {
			ru.MemoryLimits = quantityString(c.Resources.Limits, corev1.ResourceMemory)
		}
	}
	if ru == (ResourceUsage{}) {
		return nil
	}
	return &ru
}
