package driver

import (
	"time"

	"github.com/kubernify/kubernify/pkg/types"
)

// buildReport assembles the final VerificationReport from the last
// completed iteration's results. Only workloads with a version failure
// or a stability error are listed under their component; passing
// workloads are summarized by the counts alone, not enumerated.
func buildReport(
	status types.Status,
	versionResults types.VersionVerificationResults,
	stabilityResults map[string]types.StabilityAuditResult,
	missingComponents []string,
	missingWorkloads []string,
	contextLabel string,
	namespace string,
	runID string,
	skippedWorkloadNames []string,
	skippedContainers int,
	now func() time.Time,
) *types.VerificationReport {
	details := map[string]any{}
	summary := types.ReportSummary{
		TotalComponents:   len(versionResults.Components),
		MissingComponents: len(missingComponents),
		MissingWorkloads:  len(missingWorkloads),
		SkippedContainers: skippedContainers + len(skippedWorkloadNames),
	}

	for component, compResult := range versionResults.Components {
		report := &types.ComponentReport{
			Status: compResult.Status,
			Errors: compResult.Errors,
		}
		if compResult.Status == types.StatusFail {
			summary.FailedComponents++
		}

		for _, wr := range compResult.Workloads {
			auditKey := workloadKey(wr.Type, wr.Workload)
			audit, audited := stabilityResults[auditKey]
			unstable := audited && !audit.Stable()
			if unstable {
				summary.UnstableWorkloads++
			}

			if wr.Status == types.StatusPass && !unstable {
				continue
			}

			entry := types.WorkloadReport{
				Name:      wr.Workload,
				Type:      wr.Type,
				Container: wr.Container,
			}
			if wr.Status != types.StatusPass {
				entry.VersionError = wr.Error
			}
			if unstable {
				entry.Stability = stabilityDetails(audit)
			}
			report.Workloads = append(report.Workloads, entry)
		}

		details[component] = report
	}

	if len(missingComponents) > 0 {
		details["_missing_components"] = missingComponents
	}
	if len(missingWorkloads) > 0 {
		details["_missing_workloads"] = missingWorkloads
	}

	return &types.VerificationReport{
		Timestamp: now().UTC().Format(time.RFC3339),
		RunID:     runID,
		Context:   contextLabel,
		Namespace: namespace,
		Status:    status,
		Summary:   summary,
		Details:   details,
	}
}

func stabilityDetails(audit types.StabilityAuditResult) map[string]any {
	return map[string]any{
		"converged":           audit.Converged,
		"revision_consistent": audit.RevisionConsistent,
		"pods_healthy":        audit.PodsHealthy,
		"scheduling_complete": audit.SchedulingComplete,
		"job_complete":        audit.JobComplete,
		"errors":              audit.Errors,
	}
}
