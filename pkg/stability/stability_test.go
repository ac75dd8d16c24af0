package stability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubernify/kubernify/pkg/types"
)

func healthyPod(name, hash string) corev1.Pod {
	start := metav1.NewTime(time.Now().Add(-time.Hour))
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: map[string]string{"pod-template-hash": hash}},
		Status: corev1.PodStatus{
			StartTime:  &start,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", RestartCount: 0},
			},
		},
	}
}

func TestAudit_DeploymentConvergedAndStable(t *testing.T) {
	dep := appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Generation: 2},
		Status:     appsv1.DeploymentStatus{ObservedGeneration: 2},
	}
	snap := types.WorkloadSnapshot{
		Name: "frontend", Kind: types.KindDeployment, Namespace: "default",
		Raw:            dep,
		LatestRevision: &types.RevisionInfo{Hash: "abc123"},
		Pods:           []corev1.Pod{healthyPod("frontend-1", "abc123")},
	}

	result := Audit(snap, Options{RestartThreshold: 3})
	assert.True(t, result.Stable(), "expected stable, got errors: %v", result.Errors)
}

func TestAudit_NotConverged(t *testing.T) {
	dep := appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Generation: 3},
		Status:     appsv1.DeploymentStatus{ObservedGeneration: 1},
	}
	snap := types.WorkloadSnapshot{
		Name: "frontend", Kind: types.KindDeployment, Namespace: "default",
		Raw:            dep,
		LatestRevision: &types.RevisionInfo{Hash: "abc123"},
		Pods:           []corev1.Pod{healthyPod("frontend-1", "abc123")},
	}

	result := Audit(snap, Options{RestartThreshold: 3})
	require.False(t, result.Stable())
	assert.False(t, result.Converged)
}

func TestAudit_HighRestartCountIsUnstable(t *testing.T) {
	pod := healthyPod("frontend-1", "abc123")
	pod.Status.ContainerStatuses[0].RestartCount = 99

	dep := appsv1.Deployment{Status: appsv1.DeploymentStatus{ObservedGeneration: 1}}
	snap := types.WorkloadSnapshot{
		Name: "frontend", Kind: types.KindDeployment, Namespace: "default",
		Raw:            dep,
		LatestRevision: &types.RevisionInfo{Hash: "abc123"},
		Pods:           []corev1.Pod{pod},
	}

	result := Audit(snap, Options{RestartThreshold: 3})
	require.False(t, result.Stable())
}

func TestAudit_RevisionMismatchIsUnstable(t *testing.T) {
	dep := appsv1.Deployment{Status: appsv1.DeploymentStatus{ObservedGeneration: 1}}
	snap := types.WorkloadSnapshot{
		Name: "frontend", Kind: types.KindDeployment, Namespace: "default",
		Raw:            dep,
		LatestRevision: &types.RevisionInfo{Hash: "new-hash"},
		Pods:           []corev1.Pod{healthyPod("frontend-1", "old-hash")},
	}

	result := Audit(snap, Options{RestartThreshold: 3})
	require.False(t, result.Stable())
	assert.False(t, result.RevisionConsistent)
}

func TestAudit_DaemonSetSchedulingIncomplete(t *testing.T) {
	ds := appsv1.DaemonSet{
		Status: appsv1.DaemonSetStatus{
			DesiredNumberScheduled: 5,
			NumberAvailable:        3,
			UpdatedNumberScheduled: 3,
		},
	}
	snap := types.WorkloadSnapshot{
		Name: "node-agent", Kind: types.KindDaemonSet, Namespace: "default",
		Raw:            ds,
		LatestRevision: &types.RevisionInfo{Hash: "h1"},
	}

	result := Audit(snap, Options{RestartThreshold: 3})
	require.False(t, result.Stable())
	assert.False(t, result.SchedulingComplete)
}

func TestAudit_JobNotYetSucceeded(t *testing.T) {
	job := batchv1.Job{Status: batchv1.JobStatus{Succeeded: 0, Failed: 0}}
	snap := types.WorkloadSnapshot{
		Name: "migrate", Kind: types.KindJob, Namespace: "default",
		Raw: job,
	}

	result := Audit(snap, Options{RestartThreshold: 3})
	require.False(t, result.Stable())
	assert.False(t, result.JobComplete)
}

func TestAudit_JobExceedingBackoffLimitFails(t *testing.T) {
	limit := int32(2)
	job := batchv1.Job{
		Spec:   batchv1.JobSpec{BackoffLimit: &limit},
		Status: batchv1.JobStatus{Succeeded: 0, Failed: 3},
	}
	snap := types.WorkloadSnapshot{
		Name: "migrate", Kind: types.KindJob, Namespace: "default",
		Raw: job,
	}

	result := Audit(snap, Options{RestartThreshold: 3})
	require.False(t, result.Stable())
}

func TestAudit_TerminatingPodIsUnstable(t *testing.T) {
	pod := healthyPod("frontend-1", "abc123")
	now := metav1.Now()
	pod.DeletionTimestamp = &now

	dep := appsv1.Deployment{Status: appsv1.DeploymentStatus{ObservedGeneration: 1}}
	snap := types.WorkloadSnapshot{
		Name: "frontend", Kind: types.KindDeployment, Namespace: "default",
		Raw:            dep,
		LatestRevision: &types.RevisionInfo{Hash: "abc123"},
		Pods:           []corev1.Pod{pod},
	}

	result := Audit(snap, Options{RestartThreshold: 3})
	require.False(t, result.Stable())
}
