package snapshot

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// Deployment phases derived from status conditions.
const (
	PhaseAvailable   = "Available"
	PhaseDegraded    = "Degraded"
	PhaseProgressing = "Progressing"
	PhaseUnavailable = "Unavailable"
)

// ExtractDeployment builds a snapshot from a deployment. The phase is derived
// from the Available and Progressing conditions; a single warning is added
// when replicas are unavailable.
func ExtractDeployment(d *appsv1.Deployment) Snapshot {
	if d == nil {
		return Snapshot{Kind: KindDeployment, Phase: PhaseUnknown}
	}
	s := Snapshot{
		Kind:      KindDeployment,
		Name:      d.Name,
		Namespace: d.Namespace,
		Age:       formatTimestamp(d.CreationTimestamp.Time),
	}

	var available, progressing corev1.ConditionStatus
	for _, c := range d.Status.Conditions {
		s.Conditions = append(s.Conditions, Condition{
			Type:    string(c.Type),
			Status:  string(c.Status),
			Reason:  c.Reason,
			Message: c.Message,
		})
		switch c.Type {
		case appsv1.DeploymentAvailable:
			available = c.Status
		case appsv1.DeploymentProgressing:
			progressing = c.Status
		}
	}

	desired := 0
	if d.Spec.Replicas != nil {
		desired = int(*d.Spec.Replicas)
	}
	ready := int(d.Status.ReadyReplicas)
	unavailable := int(d.Status.UnavailableReplicas)
	s.Replicas = &Replicas{Desired: desired, Ready: ready, Unavailable: unavailable}

	switch {
	case available == corev1.ConditionTrue && unavailable == 0:
		s.Phase = PhaseAvailable
	case available == corev1.ConditionTrue:
		s.Phase = PhaseDegraded
	case progressing == corev1.ConditionTrue:
		s.Phase = PhaseProgressing
	case available == corev1.ConditionFalse:
		s.Phase = PhaseUnavailable
	default:
		s.Phase = PhaseUnknown
	}

	s.Ready = unavailable == 0 && ready >= desired
	if unavailable > 0 {
		s.Warnings = []string{fmt.Sprintf("%d/%d replicas unavailable", unavailable, desired)}
	}
	return s
}
