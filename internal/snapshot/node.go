package snapshot

import (
	corev1 "k8s.io/api/core/v1"
)

// Node phases.
const (
	PhaseReady = "Ready"
)

// ExtractNode builds a snapshot from a node. Every non-Ready condition that is
// True (MemoryPressure, DiskPressure, PIDPressure, ...) becomes a warning, as
// does the Ready condition's message when the node is not ready.
func ExtractNode(n *corev1.Node) Snapshot {
	if n == nil {
		return Snapshot{Kind: KindNode, Phase: PhaseUnknown}
	}
	s := Snapshot{
		Kind: KindNode,
		Name: n.Name,
		Age:  formatTimestamp(n.CreationTimestamp.Time),
	}

	var readyMessage string
	for _, c := range n.Status.Conditions {
		s.Conditions = append(s.Conditions, Condition{
			Type:    string(c.Type),
			Status:  string(c.Status),
			Reason:  c.Reason,
			Message: c.Message,
		})
		if c.Type == corev1.NodeReady {
			s.Ready = c.Status == corev1.ConditionTrue
			readyMessage = c.Message
			continue
		}
		if c.Status == corev1.ConditionTrue {
			s.Warnings = append(s.Warnings, string(c.Type))
		}
	}

	if s.Ready {
		s.Phase = PhaseReady
	} else {
		s.Phase = PhaseNotReady
		if readyMessage != "" {
			s.Warnings = append(s.Warnings, readyMessage)
		}
	}

	ru := ResourceUsage{
		CPURequests:    quantityString(n.Status.Allocatable, corev1.ResourceCPU),
		MemoryRequests: quantityString(n.Status.Allocatable, corev1.ResourceMemory),
		CPULimits:      quantityString(n.Status.Capacity, corev1.ResourceCPU),
		MemoryLimits:   quantityString(n.Status.Capacity, corev1.ResourceMemory),
	}
	if ru != (ResourceUsage{}) {
		s.ResourceUsage = &ru
	}
	return s
}
