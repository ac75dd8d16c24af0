// Package driver implements the retry/convergence loop that ties
// discovery, component mapping, version verification, and stability
// auditing together into a single PASS/FAIL/TIMEOUT VerificationReport.
package driver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/kubernify/kubernify/pkg/discovery"
	"github.com/kubernify/kubernify/pkg/errs"
	"github.com/kubernify/kubernify/pkg/health"
	"github.com/kubernify/kubernify/pkg/mapper"
	"github.com/kubernify/kubernify/pkg/metrics"
	"github.com/kubernify/kubernify/pkg/stability"
	"github.com/kubernify/kubernify/pkg/types"
	"github.com/kubernify/kubernify/pkg/verify"
)

// Config holds every tunable the driver's loop needs, gathered from CLI
// flags in one place (per the "avoid global state" design note, these
// are plain values constructed once in main and passed down).
type Config struct {
	Namespace         string
	Manifest          map[string]string
	RequiredWorkloads []string
	SkipPatterns      []string
	Timeout           time.Duration
	RetryInterval     time.Duration
	DryRun            bool
	AllowZeroReplicas bool
	RestartThreshold  int
	MinUptimeSeconds  int
	ContextLabel      string
}

// Driver runs the verification loop against one Discoverer/Mapper pair.
type Driver struct {
	discoverer *discovery.Discoverer
	mapper     *mapper.Mapper
	cfg        Config

	health  *health.Checker
	metrics *metrics.Recorder

	// now is overridable for tests.
	now func() time.Time
}

// New builds a Driver. cfg.Timeout and cfg.RetryInterval default to the
// package-level constants when zero.
func New(discoverer *discovery.Discoverer, m *mapper.Mapper, cfg Config) *Driver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = types.DefaultTimeoutSeconds * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = types.RetryInterval
	}
	if cfg.RestartThreshold <= 0 {
		cfg.RestartThreshold = types.DefaultRestartThreshold
	}
	return &Driver{discoverer: discoverer, mapper: m, cfg: cfg, now: time.Now}
}

// WithObservers attaches an optional health checker and metrics recorder,
// both nil-safe, wired to the --health-addr surface in pkg/kubernify/cmd.
func (d *Driver) WithObservers(hc *health.Checker, rec *metrics.Recorder) *Driver {
	d.health = hc
	d.metrics = rec
	return d
}

// Run executes the verification convergence loop and returns the final
// VerificationReport. It never returns a non-nil error
// for expected outcomes (FAIL/TIMEOUT are encoded in the report itself);
// it returns an error only for a non-retryable discovery failure during
// --dry-run, matching the ConfigError/InitError/TransientDiscoveryError
// taxonomy in pkg/errs.
func (d *Driver) Run(ctx context.Context) (*types.VerificationReport, error) {
	start := d.now()
	runID := uuid.NewString()
	klog.V(0).Infof("starting verification run %s for namespace %s", runID, d.cfg.Namespace)

	status := types.StatusPass
	versionResults := types.VersionVerificationResults{Components: map[string]*types.ComponentVerificationResult{}}
	stabilityResults := map[string]types.StabilityAuditResult{}
	var missingComponents, missingWorkloads, skippedWorkloadNames []string
	var skippedContainers int

	for {
		if d.now().Sub(start) > d.cfg.Timeout {
			klog.Error("global timeout reached")
			status = types.StatusTimeout
			break
		}

		klog.V(0).Info("discovering cluster state...")
		snapshots, skipped, err := d.discoverer.Discover(ctx, d.cfg.Namespace, d.cfg.SkipPatterns)
		if err != nil {
			klog.Errorf("discovery failed: %v", err)
			var transient *errs.TransientDiscoveryError
			if d.cfg.DryRun && errors.As(err, &transient) {
				return nil, err
			}
			if waitOrDone(ctx, d.cfg.RetryInterval) {
				status = types.StatusTimeout
				break
			}
			continue
		}
		skippedWorkloadNames = skipped

		componentMap, mapperSkipped := d.mapper.Build(snapshots, d.cfg.Manifest)
		skippedContainers = mapperSkipped

		missingComponents = verify.ValidateManifest(d.cfg.Manifest, componentMap)
		missingWorkloads = verify.RequiredWorkloads(d.cfg.RequiredWorkloads, snapshots)
		versionResults = verify.Versions(d.cfg.Manifest, componentMap, verify.Options{AllowZeroReplicas: d.cfg.AllowZeroReplicas})

		stabilityResults = auditAll(componentMap, snapshots, d.cfg)
		allStable := allWorkloadsStable(stabilityResults)

		hasErrors := len(versionResults.Errors) > 0 || len(missingComponents) > 0 || len(missingWorkloads) > 0

		if d.health != nil {
			d.health.MarkReady()
		}
		if d.metrics != nil {
			d.metrics.RecordIteration(d.cfg.Namespace, iterationStatus(hasErrors, allStable), countUnstable(stabilityResults))
		}

		if d.cfg.DryRun {
			if hasErrors || !allStable {
				status = types.StatusFail
			}
			break
		}

		if !hasErrors && allStable {
			klog.V(0).Info("verification and stability checks passed")
			status = types.StatusPass
			break
		}

		klog.V(0).Info("waiting for convergence/stability...")
		if waitOrDone(ctx, d.cfg.RetryInterval) {
			status = types.StatusTimeout
			break
		}
	}

	report := buildReport(status, versionResults, stabilityResults, missingComponents, missingWorkloads,
		d.cfg.ContextLabel, d.cfg.Namespace, runID, skippedWorkloadNames, skippedContainers, d.now)

	return report, nil
}

// waitOrDone sleeps for interval, returning true if ctx was cancelled
// first (the caller should treat this as a timeout).
func waitOrDone(ctx context.Context, interval time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(interval):
		return false
	}
}

// auditAll audits every workload that either appears in componentMap or
// is a required workload matching a discovered snapshot. Workloads that
// only match a skip pattern are never audited.
func auditAll(componentMap map[string][]types.ComponentMapEntry, snapshots []types.WorkloadSnapshot, cfg Config) map[string]types.StabilityAuditResult {
	bySnapshotKey := make(map[string]types.WorkloadSnapshot, len(snapshots))
	for _, s := range snapshots {
		bySnapshotKey[workloadKey(string(s.Kind), s.Name)] = s
	}

	toAudit := map[string]struct{}{}
	toSkip := map[string]struct{}{}

	for _, entries := range componentMap {
		for _, entry := range entries {
			key := workloadKey(string(entry.WorkloadType), entry.WorkloadName)
			if matchesAnyPattern(cfg.SkipPatterns, entry.ContainerName, entry.WorkloadName) {
				toSkip[key] = struct{}{}
			} else {
				toAudit[key] = struct{}{}
			}
		}
	}

	for _, snap := range snapshots {
		key := workloadKey(string(snap.Kind), snap.Name)
		if matchesAnyPattern(cfg.SkipPatterns, "", snap.Name) {
			toSkip[key] = struct{}{}
			continue
		}
		for _, required := range cfg.RequiredWorkloads {
			if required != "" && contains(snap.Name, required) {
				if _, skip := toSkip[key]; !skip {
					toAudit[key] = struct{}{}
				}
				break
			}
		}
	}

	results := map[string]types.StabilityAuditResult{}
	for key := range toAudit {
		snap, ok := bySnapshotKey[key]
		if !ok {
			continue
		}
		results[key] = stability.Audit(snap, stability.Options{
			RestartThreshold: cfg.RestartThreshold,
			MinUptimeSeconds: cfg.MinUptimeSeconds,
		})
	}
	return results
}

func allWorkloadsStable(results map[string]types.StabilityAuditResult) bool {
	for _, r := range results {
		if !r.Stable() {
			return false
		}
	}
	return true
}

func workloadKey(kind, name string) string { return kind + "/" + name }

func matchesAnyPattern(patterns []string, values ...string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		for _, v := range values {
			if contains(v, p) {
				return true
			}
		}
	}
	return false
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

func iterationStatus(hasErrors, allStable bool) types.Status {
	if hasErrors || !allStable {
		return types.StatusFail
	}
	return types.StatusPass
}

func countUnstable(results map[string]types.StabilityAuditResult) int {
	count := 0
	for _, r := range results {
		if !r.Stable() {
			count++
		}
	}
	return count
}
