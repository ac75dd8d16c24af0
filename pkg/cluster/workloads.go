package cluster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"

	"github.com/kubernify/kubernify/pkg/errs"
	"github.com/kubernify/kubernify/pkg/types"
)

const (
	defaultPageLimit   = 100
	defaultListTimeout = 30 * time.Second
)

// ListDeployments fetches all Deployments in namespace, keyed by
// "namespace/name". An empty namespace lists cluster-wide.
func (s *Session) ListDeployments(ctx context.Context, namespace string) (map[string]appsv1.Deployment, error) {
	list, err := s.ClientSet.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list Deployments: %w", err)
	}
	out := map[string]appsv1.Deployment{}
	for _, d := range list.Items {
		out[d.Namespace+"/"+d.Name] = d
	}
	return out, nil
}

// ListStatefulSets fetches all StatefulSets in namespace.
func (s *Session) ListStatefulSets(ctx context.Context, namespace string) (map[string]appsv1.StatefulSet, error) {
	list, err := s.ClientSet.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list StatefulSets: %w", err)
	}
	out := map[string]appsv1.StatefulSet{}
	for _, d := range list.Items {
		out[d.Namespace+"/"+d.Name] = d
	}
	return out, nil
}

// ListDaemonSets fetches all DaemonSets in namespace.
func (s *Session) ListDaemonSets(ctx context.Context, namespace string) (map[string]appsv1.DaemonSet, error) {
	list, err := s.ClientSet.AppsV1().DaemonSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list DaemonSets: %w", err)
	}
	out := map[string]appsv1.DaemonSet{}
	for _, d := range list.Items {
		out[d.Namespace+"/"+d.Name] = d
	}
	return out, nil
}

// ListJobs fetches all Jobs in namespace.
func (s *Session) ListJobs(ctx context.Context, namespace string) (map[string]batchv1.Job, error) {
	list, err := s.ClientSet.BatchV1().Jobs(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list Jobs: %w", err)
	}
	out := map[string]batchv1.Job{}
	for _, d := range list.Items {
		out[d.Namespace+"/"+d.Name] = d
	}
	return out, nil
}

// ListCronJobs fetches all CronJobs in namespace.
func (s *Session) ListCronJobs(ctx context.Context, namespace string) (map[string]batchv1.CronJob, error) {
	list, err := s.ClientSet.BatchV1().CronJobs(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list CronJobs: %w", err)
	}
	out := map[string]batchv1.CronJob{}
	for _, d := range list.Items {
		out[d.Namespace+"/"+d.Name] = d
	}
	return out, nil
}

// listPodsWithSelector lists pods matching labelSelector with pagination
// and an overall timeout. On a transient listing error it sleeps one
// second and retries within the remaining budget. After the timeout it
// returns whatever has been collected so far — it never returns an
// error, matching the cluster session's best-effort listing contract.
func (s *Session) listPodsWithSelector(ctx context.Context, namespace, labelSelector string) []corev1.Pod {
	start := time.Now()
	var pods []corev1.Pod
	var continueToken string

	for time.Since(start) < defaultListTimeout {
		list, err := s.ClientSet.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
			LabelSelector: labelSelector,
			Continue:      continueToken,
			Limit:         defaultPageLimit,
		})
		if err != nil {
			klog.V(1).Infof("error listing pods with selector %s: %v", labelSelector, err)
			remaining := defaultListTimeout - time.Since(start)
			if remaining <= 0 {
				break
			}
			sleep := time.Second
			if sleep > remaining {
				sleep = remaining
			}
			select {
			case <-ctx.Done():
				return pods
			case <-time.After(sleep):
			}
			continue
		}
		pods = append(pods, list.Items...)
		continueToken = list.Continue
		if continueToken == "" {
			break
		}
	}
	return pods
}

func labelsToSelector(matchLabels map[string]string) string {
	pairs := make([]string, 0, len(matchLabels))
	for k, v := range matchLabels {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

// ListPodsByDeployment returns all pods managed by the named Deployment,
// resolved via its selector's match labels.
func (s *Session) ListPodsByDeployment(ctx context.Context, name, namespace string) ([]corev1.Pod, error) {
	d, err := s.ClientSet.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not read Deployment %s: %w", name, err)
	}
	if d.Spec.Selector == nil || len(d.Spec.Selector.MatchLabels) == 0 {
		return nil, fmt.Errorf("%w: Deployment %s", errs.ErrNoSelector, name)
	}
	return s.listPodsWithSelector(ctx, namespace, labelsToSelector(d.Spec.Selector.MatchLabels)), nil
}

// ListPodsByStatefulSet returns all pods managed by the named StatefulSet.
func (s *Session) ListPodsByStatefulSet(ctx context.Context, name, namespace string) ([]corev1.Pod, error) {
	sts, err := s.ClientSet.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not read StatefulSet %s: %w", name, err)
	}
	if sts.Spec.Selector == nil || len(sts.Spec.Selector.MatchLabels) == 0 {
		return nil, fmt.Errorf("%w: StatefulSet %s", errs.ErrNoSelector, name)
	}
	return s.listPodsWithSelector(ctx, namespace, labelsToSelector(sts.Spec.Selector.MatchLabels)), nil
}

// ListPodsByDaemonSet returns all pods managed by the named DaemonSet.
func (s *Session) ListPodsByDaemonSet(ctx context.Context, name, namespace string) ([]corev1.Pod, error) {
	ds, err := s.ClientSet.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not read DaemonSet %s: %w", name, err)
	}
	if ds.Spec.Selector == nil || len(ds.Spec.Selector.MatchLabels) == 0 {
		return nil, fmt.Errorf("%w: DaemonSet %s", errs.ErrNoSelector, name)
	}
	return s.listPodsWithSelector(ctx, namespace, labelsToSelector(ds.Spec.Selector.MatchLabels)), nil
}

// ListPodsByJob returns all pods managed by the named Job. Jobs may have
// an empty match-labels selector; this falls back to the Job's own
// controller-uid label.
func (s *Session) ListPodsByJob(ctx context.Context, name, namespace string) ([]corev1.Pod, error) {
	job, err := s.ClientSet.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not read Job %s: %w", name, err)
	}

	matchLabels := map[string]string{}
	if job.Spec.Selector != nil {
		matchLabels = job.Spec.Selector.MatchLabels
	}
	if len(matchLabels) == 0 {
		if uid, ok := job.Labels["controller-uid"]; ok && uid != "" {
			matchLabels = map[string]string{"controller-uid": uid}
		} else {
			return nil, fmt.Errorf("%w: Job %s", errs.ErrNoSelector, name)
		}
	}
	return s.listPodsWithSelector(ctx, namespace, labelsToSelector(matchLabels)), nil
}

// DeploymentLatestRevisionInfo scans ReplicaSets owned by the named
// Deployment and returns the hash and revision number of the newest one
// by creation timestamp (ties broken by name for determinism).
func (s *Session) DeploymentLatestRevisionInfo(ctx context.Context, name, namespace string) types.RevisionInfo {
	list, err := s.ClientSet.AppsV1().ReplicaSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		klog.V(1).Infof("failed to list replica sets for %s: %v", name, err)
		return types.RevisionInfo{Strategy: "RollingUpdate"}
	}

	var latest *appsv1.ReplicaSet
	for i := range list.Items {
		rs := &list.Items[i]
		owned := false
		for _, owner := range rs.OwnerReferences {
			if owner.Kind == string(types.KindDeployment) && owner.Name == name {
				owned = true
				break
			}
		}
		if !owned {
			continue
		}
		if latest == nil ||
			rs.CreationTimestamp.After(latest.CreationTimestamp.Time) ||
			(rs.CreationTimestamp.Equal(&latest.CreationTimestamp) && rs.Name > latest.Name) {
			latest = rs
		}
	}

	if latest == nil {
		return types.RevisionInfo{Strategy: "RollingUpdate"}
	}

	hash := latest.Labels["pod-template-hash"]
	var number *int
	if revStr, ok := latest.Annotations["deployment.kubernetes.io/revision"]; ok {
		if n, convErr := strconv.Atoi(revStr); convErr == nil {
			number = &n
		}
	}
	return types.RevisionInfo{Hash: hash, Strategy: "RollingUpdate", Number: number}
}

// StatefulSetLatestRevisionInfo reads the StatefulSet's status for its
// update/current revision hashes, rolling-update partition, and strategy.
func (s *Session) StatefulSetLatestRevisionInfo(ctx context.Context, name, namespace string) types.RevisionInfo {
	sts, err := s.ClientSet.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		klog.V(1).Infof("failed to read StatefulSet %s for revision info: %v", name, err)
		return types.RevisionInfo{Strategy: "RollingUpdate"}
	}

	strategy := "RollingUpdate"
	var partition int32
	if sts.Spec.UpdateStrategy.Type != "" {
		strategy = string(sts.Spec.UpdateStrategy.Type)
	}
	if strategy == "RollingUpdate" && sts.Spec.UpdateStrategy.RollingUpdate != nil &&
		sts.Spec.UpdateStrategy.RollingUpdate.Partition != nil {
		partition = *sts.Spec.UpdateStrategy.RollingUpdate.Partition
	}

	return types.RevisionInfo{
		Hash:        sts.Status.UpdateRevision,
		CurrentHash: sts.Status.CurrentRevision,
		Partition:   partition,
		Strategy:    strategy,
	}
}

// DaemonSetRevision extracts the controller-revision-hash label from a
// DaemonSet's own pod template, the only place that revision is
// recorded for this kind.
func (s *Session) DaemonSetRevision(ctx context.Context, name, namespace string) (types.RevisionInfo, error) {
	ds, err := s.ClientSet.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return types.RevisionInfo{}, fmt.Errorf("failed to get DaemonSet %s for revision: %w", name, err)
	}
	hash := ds.Spec.Template.Labels["controller-revision-hash"]
	if hash == "" {
		return types.RevisionInfo{}, fmt.Errorf("DaemonSet %s pod template has no controller-revision-hash label", name)
	}
	return types.RevisionInfo{Hash: hash, Strategy: "RollingUpdate"}, nil
}
