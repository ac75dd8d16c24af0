// Package discovery fetches and inspects Kubernetes workloads in a
// namespace: it lists every enabled workload kind, filters skip-pattern
// matches, then fans out one inspection task per remaining workload to a
// bounded worker pool, assembling WorkloadSnapshots.
package discovery

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/klog/v2"

	"github.com/kubernify/kubernify/pkg/cluster"
	"github.com/kubernify/kubernify/pkg/errs"
	"github.com/kubernify/kubernify/pkg/types"
)

// Options configures which workload kinds are included beyond the
// always-on Deployment, and the inspection pool's worker count.
type Options struct {
	IncludeStatefulSets bool
	IncludeDaemonSets   bool
	IncludeJobs         bool
	// PoolWorkers is a throughput knob, not a correctness constraint;
	// any value >= 1 preserves semantics. Zero selects the default.
	PoolWorkers int
}

// Discoverer orchestrates workload discovery against one cluster Session.
type Discoverer struct {
	session *cluster.Session
	opts    Options
}

// New builds a Discoverer bound to session.
func New(session *cluster.Session, opts Options) *Discoverer {
	if opts.PoolWorkers <= 0 {
		opts.PoolWorkers = types.DefaultPoolWorkers
	}
	return &Discoverer{session: session, opts: opts}
}

// workloadRef is the kind-erased view of a single listed workload used
// to drive the generic inspection task.
type workloadRef struct {
	name string
	kind types.WorkloadKind
	raw  any
}

// fetchAll lists every enabled workload kind. A listing failure for any
// one kind is fatal for the whole discovery pass.
func (d *Discoverer) fetchAll(ctx context.Context, namespace string) ([]workloadRef, error) {
	var refs []workloadRef

	deployments, err := d.session.ListDeployments(ctx, namespace)
	if err != nil {
		return nil, errs.NewTransientDiscoveryError(err)
	}
	klog.V(1).Infof("fetched %d Deployments", len(deployments))
	for name, dep := range deployments {
		refs = append(refs, workloadRef{name: shortName(name), kind: types.KindDeployment, raw: dep})
	}

	if d.opts.IncludeStatefulSets {
		sets, err := d.session.ListStatefulSets(ctx, namespace)
		if err != nil {
			return nil, errs.NewTransientDiscoveryError(err)
		}
		klog.V(1).Infof("fetched %d StatefulSets", len(sets))
		for name, sts := range sets {
			refs = append(refs, workloadRef{name: shortName(name), kind: types.KindStatefulSet, raw: sts})
		}
	}

	if d.opts.IncludeDaemonSets {
		sets, err := d.session.ListDaemonSets(ctx, namespace)
		if err != nil {
			return nil, errs.NewTransientDiscoveryError(err)
		}
		klog.V(1).Infof("fetched %d DaemonSets", len(sets))
		for name, ds := range sets {
			refs = append(refs, workloadRef{name: shortName(name), kind: types.KindDaemonSet, raw: ds})
		}
	}

	if d.opts.IncludeJobs {
		jobs, err := d.session.ListJobs(ctx, namespace)
		if err != nil {
			return nil, errs.NewTransientDiscoveryError(err)
		}
		klog.V(1).Infof("fetched %d Jobs", len(jobs))
		for name, j := range jobs {
			refs = append(refs, workloadRef{name: shortName(name), kind: types.KindJob, raw: j})
		}

		cronJobs, err := d.session.ListCronJobs(ctx, namespace)
		if err != nil {
			return nil, errs.NewTransientDiscoveryError(err)
		}
		klog.V(1).Infof("fetched %d CronJobs", len(cronJobs))
		for name, cj := range cronJobs {
			refs = append(refs, workloadRef{name: shortName(name), kind: types.KindCronJob, raw: cj})
		}
	}

	return refs, nil
}

func shortName(namespacedName string) string {
	if idx := strings.IndexByte(namespacedName, '/'); idx >= 0 {
		return namespacedName[idx+1:]
	}
	return namespacedName
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// Discover fetches all enabled workload kinds, filters out names matched
// by skipPatterns, and inspects the remainder concurrently on a bounded
// worker pool. It returns the inspection results (order not guaranteed)
// and the list of workload names that were skipped.
func (d *Discoverer) Discover(ctx context.Context, namespace string, skipPatterns []string) ([]types.WorkloadSnapshot, []string, error) {
	klog.V(0).Infof("discovering cluster state for namespace %s", namespace)
	refs, err := d.fetchAll(ctx, namespace)
	if err != nil {
		return nil, nil, err
	}

	var tasks []workloadRef
	var skipped []string
	for _, ref := range refs {
		if matchesAny(ref.name, skipPatterns) {
			klog.V(1).Infof("skipping inspection of workload %s (matched skip pattern)", ref.name)
			skipped = append(skipped, ref.name)
			continue
		}
		tasks = append(tasks, ref)
	}

	results := make([]types.WorkloadSnapshot, len(tasks))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(d.opts.PoolWorkers)

	for i, ref := range tasks {
		i, ref := i, ref
		group.Go(func() error {
			// Per-task failures never abort siblings: this closure
			// always returns nil and records the failure on the
			// snapshot itself.
			results[i] = d.inspect(gctx, namespace, ref)
			return nil
		})
	}
	_ = group.Wait()

	return results, skipped, nil
}

// inspect gathers revision, pod, and pod-spec information for a single
// workload. No step aborts the remaining steps: a pod-listing error other
// than a missing selector is captured on the snapshot's Error field, and
// a failed DaemonSet revision lookup is logged and leaves LatestRevision
// nil.
func (d *Discoverer) inspect(ctx context.Context, namespace string, ref workloadRef) types.WorkloadSnapshot {
	snap := types.WorkloadSnapshot{
		Name:      ref.name,
		Kind:      ref.kind,
		Namespace: namespace,
		Raw:       ref.raw,
	}

	snap.PodSpec = extractPodSpec(ref)

	switch ref.kind {
	case types.KindDeployment:
		rev := d.session.DeploymentLatestRevisionInfo(ctx, ref.name, namespace)
		snap.LatestRevision = &rev
	case types.KindStatefulSet:
		rev := d.session.StatefulSetLatestRevisionInfo(ctx, ref.name, namespace)
		snap.LatestRevision = &rev
	case types.KindDaemonSet:
		rev, err := d.session.DaemonSetRevision(ctx, ref.name, namespace)
		if err != nil {
			klog.V(1).Infof("could not determine revision for DaemonSet %s: %v", ref.name, err)
		} else {
			snap.LatestRevision = &rev
		}
	}

	var pods []corev1.Pod
	var err error
	switch ref.kind {
	case types.KindDeployment:
		pods, err = d.session.ListPodsByDeployment(ctx, ref.name, namespace)
	case types.KindStatefulSet:
		pods, err = d.session.ListPodsByStatefulSet(ctx, ref.name, namespace)
	case types.KindDaemonSet:
		pods, err = d.session.ListPodsByDaemonSet(ctx, ref.name, namespace)
	case types.KindJob:
		pods, err = d.session.ListPodsByJob(ctx, ref.name, namespace)
	}

	switch {
	case err == nil:
		snap.Pods = pods
	case isNoSelector(err):
		snap.Pods = nil
	default:
		klog.V(0).Infof("error listing pods for %s: %v", ref.name, err)
		snap.Error = err.Error()
	}

	return snap
}

func isNoSelector(err error) bool {
	return errors.Is(err, errs.ErrNoSelector)
}

func extractPodSpec(ref workloadRef) *corev1.PodSpec {
	switch ref.kind {
	case types.KindDeployment:
		dep := ref.raw.(appsv1.Deployment)
		return &dep.Spec.Template.Spec
	case types.KindStatefulSet:
		sts := ref.raw.(appsv1.StatefulSet)
		return &sts.Spec.Template.Spec
	case types.KindDaemonSet:
		ds := ref.raw.(appsv1.DaemonSet)
		return &ds.Spec.Template.Spec
	case types.KindJob:
		job := ref.raw.(batchv1.Job)
		return &job.Spec.Template.Spec
	case types.KindCronJob:
		cj := ref.raw.(batchv1.CronJob)
		return &cj.Spec.JobTemplate.Spec.Template.Spec
	default:
		return nil
	}
}
