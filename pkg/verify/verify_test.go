package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubernify/kubernify/pkg/types"
)

func entry(workload, version string, pods int) types.ComponentMapEntry {
	e := types.ComponentMapEntry{
		WorkloadName:  workload,
		WorkloadType:  types.KindDeployment,
		ContainerName: workload,
		ActualVersion: version,
	}
	for i := 0; i < pods; i++ {
		e.Pods = append(e.Pods, types.PodInfo{Name: workload})
	}
	return e
}

func TestVersions_Pass(t *testing.T) {
	componentMap := map[string][]types.ComponentMapEntry{
		"frontend": {entry("frontend", "1.2.3", 2)},
	}
	results := Versions(map[string]string{"frontend": "1.2.3"}, componentMap, Options{})
	require.Empty(t, results.Errors)
	assert.Equal(t, types.StatusPass, results.Components["frontend"].Status)
}

func TestVersions_VersionMismatchFails(t *testing.T) {
	componentMap := map[string][]types.ComponentMapEntry{
		"frontend": {entry("frontend", "1.0.0", 2)},
	}
	results := Versions(map[string]string{"frontend": "1.2.3"}, componentMap, Options{})
	require.NotEmpty(t, results.Errors)
	assert.Equal(t, types.StatusFail, results.Components["frontend"].Status)
	assert.Contains(t, results.Components["frontend"].Workloads[0].Error, "Version mismatch")
}

func TestVersions_ZeroReplicasFailsWithoutFlag(t *testing.T) {
	componentMap := map[string][]types.ComponentMapEntry{
		"frontend": {entry("frontend", "1.2.3", 0)},
	}
	results := Versions(map[string]string{"frontend": "1.2.3"}, componentMap, Options{AllowZeroReplicas: false})
	require.NotEmpty(t, results.Errors)
	assert.Contains(t, results.Components["frontend"].Workloads[0].Error, "0 running pods")
}

func TestVersions_ZeroReplicasPassesWithFlag(t *testing.T) {
	componentMap := map[string][]types.ComponentMapEntry{
		"frontend": {entry("frontend", "1.2.3", 0)},
	}
	results := Versions(map[string]string{"frontend": "1.2.3"}, componentMap, Options{AllowZeroReplicas: true})
	assert.Empty(t, results.Errors)
}

func TestVersions_MissingComponentIsComponentLevelError(t *testing.T) {
	results := Versions(map[string]string{"missing": "1.0.0"}, map[string][]types.ComponentMapEntry{}, Options{})
	require.NotEmpty(t, results.Errors)
	assert.Equal(t, types.StatusFail, results.Components["missing"].Status)
}

func TestValidateManifest_ReportsMissingComponents(t *testing.T) {
	missing := ValidateManifest(map[string]string{"frontend": "1.0.0", "backend": "2.0.0"},
		map[string][]types.ComponentMapEntry{"frontend": {}})
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0], "backend")
}

func TestRequiredWorkloads_SubstringMatch(t *testing.T) {
	discovered := []types.WorkloadSnapshot{{Name: "my-frontend-deploy"}}
	missing := RequiredWorkloads([]string{"frontend", "worker"}, discovered)
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0], "worker")
}
