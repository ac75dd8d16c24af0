// Package stability audits a discovered workload for convergence,
// revision consistency, pod health, DaemonSet scheduling completeness,
// and Job completion.
package stability

import (
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/kubernify/kubernify/pkg/types"
)

// Options tunes the pod-health check.
type Options struct {
	RestartThreshold int
	MinUptimeSeconds int
}

var waitingReasonsOfConcern = map[string]struct{}{
	"ImagePullBackOff": {},
	"ErrImagePull":     {},
	"CrashLoopBackOff": {},
}

// Audit runs all five stability checks against snap and returns the
// aggregated result. A workload is stable iff the returned result's
// error list is empty.
func Audit(snap types.WorkloadSnapshot, opts Options) types.StabilityAuditResult {
	result := types.StabilityAuditResult{}

	if snap.Name == "" || snap.Namespace == "" || snap.Kind == "" {
		result.Errors = append(result.Errors, "Invalid workload info provided")
		return result
	}

	// 1. Convergence.
	switch snap.Kind {
	case types.KindDeployment, types.KindStatefulSet, types.KindDaemonSet:
		result.Converged = checkConvergence(snap.Raw)
		if !result.Converged {
			result.Errors = append(result.Errors, "Workload not converged (observedGeneration < generation)")
		}
	default:
		result.Converged = true
	}

	// 2. Revision consistency.
	switch snap.Kind {
	case types.KindDeployment, types.KindStatefulSet, types.KindDaemonSet:
		if snap.LatestRevision != nil && snap.LatestRevision.Hash != "" {
			revErrors := checkRevisionConsistency(snap.Pods, snap.LatestRevision.Hash, snap.Kind)
			if len(revErrors) == 0 {
				result.RevisionConsistent = true
			} else {
				result.Errors = append(result.Errors, revErrors...)
			}
		} else {
			result.Errors = append(result.Errors, "Could not determine latest revision hash")
		}
	default:
		result.RevisionConsistent = true
	}

	// 3. Pod health.
	var podErrors []string
	for _, pod := range snap.Pods {
		podErrors = append(podErrors, checkPodHealth(pod, opts.RestartThreshold, opts.MinUptimeSeconds)...)
	}
	if len(podErrors) == 0 {
		result.PodsHealthy = true
	} else {
		result.Errors = append(result.Errors, podErrors...)
	}

	// 4. DaemonSet scheduling.
	if snap.Kind == types.KindDaemonSet {
		dsErrors := verifyDaemonSetScheduling(snap.Raw)
		if len(dsErrors) == 0 {
			result.SchedulingComplete = true
		} else {
			result.Errors = append(result.Errors, dsErrors...)
		}
	} else {
		result.SchedulingComplete = true
	}

	// 5. Job completion.
	if snap.Kind == types.KindJob {
		jobErrors := verifyJobStatus(snap.Raw)
		if len(jobErrors) == 0 {
			result.JobComplete = true
		} else {
			result.Errors = append(result.Errors, jobErrors...)
		}
	} else {
		result.JobComplete = true
	}

	return result
}

// checkConvergence reports observedGeneration >= generation. A workload
// whose status hasn't been reported yet has an ObservedGeneration zero
// value, which is naturally < any positive generation and so correctly
// reads as not-converged.
func checkConvergence(raw any) bool {
	switch w := raw.(type) {
	case appsv1.Deployment:
		return w.Status.ObservedGeneration >= w.Generation
	case appsv1.StatefulSet:
		return w.Status.ObservedGeneration >= w.Generation
	case appsv1.DaemonSet:
		return w.Status.ObservedGeneration >= w.Generation
	default:
		return true
	}
}

func checkRevisionConsistency(pods []corev1.Pod, expectedHash string, kind types.WorkloadKind) []string {
	if expectedHash == "" {
		return []string{"Expected revision hash is missing"}
	}

	var labelKey string
	switch kind {
	case types.KindDeployment:
		labelKey = "pod-template-hash"
	case types.KindStatefulSet, types.KindDaemonSet:
		labelKey = "controller-revision-hash"
	default:
		return nil
	}

	var errors []string
	for _, pod := range pods {
		actual := pod.Labels[labelKey]
		if actual != expectedHash {
			errors = append(errors, fmt.Sprintf("Pod %s has hash %s, expected %s", pod.Name, actual, expectedHash))
		}
	}
	return errors
}

func checkPodHealth(pod corev1.Pod, restartThreshold, minUptimeSec int) []string {
	if pod.DeletionTimestamp != nil {
		return []string{fmt.Sprintf("Pod %s is terminating", pod.Name)}
	}

	var errors []string

	var readyCond *corev1.PodCondition
	for i := range pod.Status.Conditions {
		if pod.Status.Conditions[i].Type == corev1.PodReady {
			readyCond = &pod.Status.Conditions[i]
			break
		}
	}
	if readyCond == nil || readyCond.Status != corev1.ConditionTrue {
		errors = append(errors, fmt.Sprintf("Pod %s is not Ready", pod.Name))
	}

	for _, status := range pod.Status.ContainerStatuses {
		if int(status.RestartCount) >= restartThreshold {
			errors = append(errors, fmt.Sprintf("Container %s in pod %s has %d restarts", status.Name, pod.Name, status.RestartCount))
		}
		if status.State.Waiting != nil {
			if _, bad := waitingReasonsOfConcern[status.State.Waiting.Reason]; bad {
				errors = append(errors, fmt.Sprintf("Container %s in pod %s is in %s", status.Name, pod.Name, status.State.Waiting.Reason))
			}
		}
	}

	if minUptimeSec > 0 {
		if pod.Status.StartTime != nil {
			uptime := time.Since(pod.Status.StartTime.Time.UTC())
			if uptime.Seconds() < float64(minUptimeSec) {
				errors = append(errors, fmt.Sprintf("Pod %s uptime %.1fs < %ds", pod.Name, uptime.Seconds(), minUptimeSec))
			}
		} else {
			errors = append(errors, fmt.Sprintf("Pod %s has not started yet", pod.Name))
		}
	}

	return errors
}

func verifyDaemonSetScheduling(raw any) []string {
	ds, ok := raw.(appsv1.DaemonSet)
	if !ok {
		return []string{"DaemonSet status is missing"}
	}

	desired := ds.Status.DesiredNumberScheduled
	available := ds.Status.NumberAvailable
	updated := ds.Status.UpdatedNumberScheduled

	var errors []string
	if available < desired {
		errors = append(errors, fmt.Sprintf("DaemonSet available pods %d < desired %d", available, desired))
	}
	if updated < desired {
		errors = append(errors, fmt.Sprintf("DaemonSet updated pods %d < desired %d", updated, desired))
	}
	return errors
}

const defaultBackoffLimit = int32(6)

func verifyJobStatus(raw any) []string {
	job, ok := raw.(batchv1.Job)
	if !ok {
		return []string{"Job status is missing"}
	}

	var errors []string
	if job.Status.Succeeded < 1 {
		errors = append(errors, "Job has not succeeded yet")
	}

	backoffLimit := defaultBackoffLimit
	if job.Spec.BackoffLimit != nil {
		backoffLimit = *job.Spec.BackoffLimit
	}
	if job.Status.Failed > backoffLimit {
		errors = append(errors, fmt.Sprintf("Job failed count %d > backoffLimit %d", job.Status.Failed, backoffLimit))
	}
	return errors
}
