// Package types holds the data model shared by every Kubernify package:
// image references, workload snapshots, verification results, stability
// audit results, and the top-level verification report.
package types

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

// Tunable defaults for the verification loop.
const (
	DefaultRestartThreshold = 3
	DefaultTimeoutSeconds   = 300
	DefaultPoolWorkers      = 40
	RetryInterval           = 10 * time.Second
)

// WorkloadKind enumerates the controller kinds Kubernify inspects.
type WorkloadKind string

const (
	KindDeployment  WorkloadKind = "Deployment"
	KindStatefulSet WorkloadKind = "StatefulSet"
	KindDaemonSet   WorkloadKind = "DaemonSet"
	KindJob         WorkloadKind = "Job"
	KindCronJob     WorkloadKind = "CronJob"
)

// ContainerType classifies a container within a pod spec.
type ContainerType string

const (
	ContainerInit ContainerType = "init"
	ContainerApp  ContainerType = "app"
)

// Status is the outcome of a verification run.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusTimeout Status = "TIMEOUT"
	StatusSkipped Status = "SKIPPED"
)

var exitCodes = map[Status]int{
	StatusPass:    0,
	StatusTimeout: 2,
}

// ExitCode returns the process exit code for the status: 0 for PASS,
// 2 for TIMEOUT, 1 for everything else (FAIL, SKIPPED).
func (s Status) ExitCode() int {
	if code, ok := exitCodes[s]; ok {
		return code
	}
	return 1
}

// ImageReference is the structured result of parsing a container image
// string into its component, version, sub-image, and registry parts.
type ImageReference struct {
	Component string `json:"component"`
	FullImage string `json:"full_image"`
	Version   string `json:"version"`
	SubImage  string `json:"sub_image,omitempty"`
	Registry  string `json:"registry,omitempty"`
}

// RevisionInfo summarizes a workload's controller revision state.
type RevisionInfo struct {
	Hash        string `json:"hash"`
	CurrentHash string `json:"current_hash,omitempty"`
	Partition   int32  `json:"partition"`
	Strategy    string `json:"strategy"`
	Number      *int   `json:"number,omitempty"`
}

// PodInfo is a compact snapshot of a pod, independent of API version.
type PodInfo struct {
	Name      string `json:"name"`
	IP        string `json:"ip"`
	Node      string `json:"node"`
	StartTime string `json:"start_time,omitempty"`
	Phase     string `json:"phase"`
}

// WorkloadSnapshot captures everything discovered about a single workload
// during one inspection pass.
type WorkloadSnapshot struct {
	Name           string
	Kind           WorkloadKind
	Namespace      string
	LatestRevision *RevisionInfo
	Pods           []corev1.Pod
	PodSpec        *corev1.PodSpec
	Error          string

	// Raw holds the typed object backing this snapshot, used by the
	// stability auditor for kind-specific status fields. Always one of
	// the values appsv1.Deployment, appsv1.StatefulSet, appsv1.DaemonSet,
	// batchv1.Job, batchv1.CronJob (not pointers).
	Raw any
}

// ComponentMapEntry groups every pod (or pod-spec, if replica count is
// zero) running the same exact image under one workload/container tuple.
type ComponentMapEntry struct {
	WorkloadName  string        `json:"workload_name"`
	WorkloadType  WorkloadKind  `json:"workload_type"`
	ContainerName string        `json:"container_name"`
	ContainerType ContainerType `json:"container_type"`
	ActualVersion string        `json:"actual_version"`
	Pods          []PodInfo     `json:"pods"`
}

// VerificationResult is the outcome of checking one ComponentMapEntry.
type VerificationResult struct {
	Workload  string `json:"workload"`
	Type      string `json:"type"`
	Container string `json:"container"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
}

// ComponentVerificationResult aggregates per-workload results for one
// manifest component.
type ComponentVerificationResult struct {
	Status    Status               `json:"status"`
	Errors    []string             `json:"errors"`
	Workloads []VerificationResult `json:"workloads"`
}

// VersionVerificationResults is the top-level output of the version
// verifier: a flat error list plus per-component detail.
type VersionVerificationResults struct {
	Errors     []string                                `json:"errors"`
	Components map[string]*ComponentVerificationResult `json:"components"`
}

// StabilityAuditResult holds the five stability checks for one workload.
type StabilityAuditResult struct {
	Converged          bool     `json:"converged"`
	RevisionConsistent bool     `json:"revision_consistent"`
	PodsHealthy        bool     `json:"pods_healthy"`
	SchedulingComplete bool     `json:"scheduling_complete"`
	JobComplete        bool     `json:"job_complete"`
	Errors             []string `json:"errors"`
}

// Stable reports whether the audit found no errors at all.
func (r *StabilityAuditResult) Stable() bool {
	return len(r.Errors) == 0
}

// ReportSummary is the aggregated counts surfaced at the top of a report.
type ReportSummary struct {
	TotalComponents   int `json:"total_components"`
	MissingComponents int `json:"missing_components"`
	MissingWorkloads  int `json:"missing_workloads"`
	FailedComponents  int `json:"failed_components"`
	UnstableWorkloads int `json:"unstable_workloads"`
	SkippedContainers int `json:"skipped_containers"`
}

// WorkloadReport is one workload's entry within a ComponentReport; only
// workloads with a version error or instability are listed.
type WorkloadReport struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Container    string         `json:"container"`
	VersionError string         `json:"version_error,omitempty"`
	Stability    map[string]any `json:"stability,omitempty"`
}

// ComponentReport is one manifest component's entry in the report.
type ComponentReport struct {
	Status    Status           `json:"status"`
	Errors    []string         `json:"errors"`
	Workloads []WorkloadReport `json:"workloads"`
}

// VerificationReport is the single JSON document Kubernify prints to
// stdout. Details maps component name to *ComponentReport, except for
// the sibling keys "_missing_components" and "_missing_workloads" which
// hold []string when non-empty.
type VerificationReport struct {
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Context   string         `json:"context"`
	Namespace string         `json:"namespace"`
	Status    Status         `json:"status"`
	Summary   ReportSummary  `json:"summary"`
	Details   map[string]any `json:"details"`
}
