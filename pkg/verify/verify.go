// Package verify compares each discovered ComponentMapEntry's actual
// image version against the version manifest, honoring the
// zero-replica policy.
package verify

import (
	"fmt"
	"strings"

	"github.com/kubernify/kubernify/pkg/types"
)

// Options tunes version verification.
type Options struct {
	AllowZeroReplicas bool
}

func verifyEntry(entry types.ComponentMapEntry, expectedVersion string, opts Options) types.VerificationResult {
	base := types.VerificationResult{
		Workload:  entry.WorkloadName,
		Type:      string(entry.WorkloadType),
		Container: entry.ContainerName,
	}

	if len(entry.Pods) == 0 && !opts.AllowZeroReplicas {
		base.Status = types.StatusFail
		base.Error = fmt.Sprintf("Workload has 0 running pods (version from pod spec: %s)", entry.ActualVersion)
		return base
	}

	if entry.ActualVersion != expectedVersion {
		base.Status = types.StatusFail
		base.Error = fmt.Sprintf("Version mismatch: expected %s, found %s", expectedVersion, entry.ActualVersion)
		return base
	}

	base.Status = types.StatusPass
	return base
}

// Versions checks every manifest component against componentMap,
// producing a flat error list plus per-component detail. A component
// absent from componentMap yields a single "not found" component-level
// error; a component is FAIL if any of its entries FAIL.
func Versions(manifest map[string]string, componentMap map[string][]types.ComponentMapEntry, opts Options) types.VersionVerificationResults {
	results := types.VersionVerificationResults{
		Components: map[string]*types.ComponentVerificationResult{},
	}

	for component, expectedVersion := range manifest {
		compResult := &types.ComponentVerificationResult{Status: types.StatusPass}

		entries, ok := componentMap[component]
		if !ok {
			msg := fmt.Sprintf("Component '%s' not found", component)
			compResult.Status = types.StatusFail
			compResult.Errors = append(compResult.Errors, msg)
			results.Errors = append(results.Errors, msg)
			results.Components[component] = compResult
			continue
		}

		for _, entry := range entries {
			res := verifyEntry(entry, expectedVersion, opts)
			compResult.Workloads = append(compResult.Workloads, res)
			if res.Status == types.StatusFail {
				compResult.Status = types.StatusFail
				compResult.Errors = append(compResult.Errors, fmt.Sprintf("%s: %s", entry.WorkloadName, res.Error))
				results.Errors = append(results.Errors, fmt.Sprintf("[%s] %s: %s", component, entry.WorkloadName, res.Error))
			}
		}

		results.Components[component] = compResult
	}

	return results
}

// ValidateManifest reports "Component 'X' not found in cluster" for
// every manifest key absent from componentMap.
func ValidateManifest(manifest map[string]string, componentMap map[string][]types.ComponentMapEntry) []string {
	var missing []string
	for component := range manifest {
		if _, ok := componentMap[component]; !ok {
			missing = append(missing, fmt.Sprintf("Component '%s' not found in cluster", component))
		}
	}
	return missing
}

// RequiredWorkloads reports "Required workload 'X' not found" for every
// required pattern that is not a substring of any discovered snapshot name.
func RequiredWorkloads(required []string, discovered []types.WorkloadSnapshot) []string {
	names := make(map[string]struct{}, len(discovered))
	for _, w := range discovered {
		names[w.Name] = struct{}{}
	}

	var missing []string
	for _, req := range required {
		found := false
		for name := range names {
			if strings.Contains(name, req) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, fmt.Sprintf("Required workload '%s' not found", req))
		}
	}
	return missing
}
