// Package mapper joins discovered workload snapshots with a version
// manifest via the image parser, applying component aliases and skip
// patterns to build the per-component map the verifier and auditor
// consume.
package mapper

import (
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/kubernify/kubernify/pkg/errs"
	"github.com/kubernify/kubernify/pkg/imageref"
	"github.com/kubernify/kubernify/pkg/types"
)

// Options configures a Mapper.
type Options struct {
	Anchor       string
	SkipPatterns []string
	// Aliases maps a manifest key to the image-side component name it
	// should resolve from, e.g. {"foo": "bar-baz"} lets an image parsed
	// as component "bar-baz" satisfy manifest entry "foo".
	Aliases map[string]string
}

// Mapper builds a component map from discovered workloads and a manifest.
type Mapper struct {
	anchor         string
	skipPatterns   []string
	reverseAliases map[string]string // image-side name -> manifest key
}

// New validates the alias set and builds a Mapper. Two manifest keys
// aliasing to the same image-side name is a configuration error, raised
// here, before any cluster I/O.
func New(opts Options) (*Mapper, error) {
	reverse := make(map[string]string, len(opts.Aliases))
	for manifestKey, imageName := range opts.Aliases {
		if existing, ok := reverse[imageName]; ok && existing != manifestKey {
			return nil, errs.NewConfigError(
				"component alias target %q is claimed by both manifest keys %q and %q",
				imageName, existing, manifestKey)
		}
		reverse[imageName] = manifestKey
	}
	return &Mapper{
		anchor:         opts.Anchor,
		skipPatterns:   opts.SkipPatterns,
		reverseAliases: reverse,
	}, nil
}

// containerImage pairs a parsed container with the pod metadata it came
// from, if any.
type containerImage struct {
	image         string
	containerType types.ContainerType
	pod           *types.PodInfo
}

func containersFromSpec(initContainers, appContainers []corev1.Container, pod *types.PodInfo) []containerImage {
	var out []containerImage
	for _, c := range initContainers {
		out = append(out, containerImage{image: c.Image, containerType: types.ContainerInit, pod: pod})
	}
	for _, c := range appContainers {
		out = append(out, containerImage{image: c.Image, containerType: types.ContainerApp, pod: pod})
	}
	return out
}

// extractContainers enumerates containers for a workload: from running
// pods when present, else from the pod-spec template (zero-replica
// extraction), else none.
func extractContainers(snap types.WorkloadSnapshot) []containerImage {
	if len(snap.Pods) > 0 {
		var out []containerImage
		for _, pod := range snap.Pods {
			info := podInfoFrom(pod)
			out = append(out, containersFromSpec(pod.Spec.InitContainers, pod.Spec.Containers, &info)...)
		}
		return out
	}
	if snap.PodSpec != nil {
		return containersFromSpec(snap.PodSpec.InitContainers, snap.PodSpec.Containers, nil)
	}
	return nil
}

func podInfoFrom(pod corev1.Pod) types.PodInfo {
	var startTime string
	if pod.Status.StartTime != nil {
		startTime = pod.Status.StartTime.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return types.PodInfo{
		Name:      pod.Name,
		IP:        pod.Status.PodIP,
		Node:      pod.Spec.NodeName,
		StartTime: startTime,
		Phase:     string(pod.Status.Phase),
	}
}

func matchesAnyPattern(patterns []string, values ...string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		for _, v := range values {
			if strings.Contains(v, p) {
				return true
			}
		}
	}
	return false
}

// Build groups every container image matching a manifest component
// (directly, or via alias) under ComponentMapEntry buckets keyed by
// manifest component name. It also returns the count of container
// entries that were skipped due to a skip pattern match.
func (m *Mapper) Build(workloads []types.WorkloadSnapshot, manifest map[string]string) (map[string][]types.ComponentMapEntry, int) {
	componentMap := map[string][]types.ComponentMapEntry{}
	skippedContainers := 0

	for _, workload := range workloads {
		for _, ci := range extractContainers(workload) {
			parsed, err := imageref.Parse(ci.image, m.anchor)
			if err != nil {
				continue
			}

			mappedComponent := parsed.Component
			if alias, ok := m.reverseAliases[parsed.Component]; ok {
				mappedComponent = alias
			}

			if _, ok := manifest[mappedComponent]; !ok {
				continue
			}

			if matchesAnyPattern(m.skipPatterns, parsed.Component, workload.Name) {
				skippedContainers++
				continue
			}

			buildOrUpdateEntry(componentMap, mappedComponent, workload.Name, workload.Kind, parsed, ci)
		}
	}

	return componentMap, skippedContainers
}

func buildOrUpdateEntry(
	componentMap map[string][]types.ComponentMapEntry,
	component, workloadName string,
	workloadKind types.WorkloadKind,
	parsed types.ImageReference,
	ci containerImage,
) {
	entries := componentMap[component]
	for i := range entries {
		e := &entries[i]
		if e.WorkloadName == workloadName && e.WorkloadType == workloadKind &&
			e.ContainerName == parsed.Component && e.ActualVersion == parsed.Version {
			if ci.pod != nil {
				e.Pods = append(e.Pods, *ci.pod)
			}
			return
		}
	}

	entry := types.ComponentMapEntry{
		WorkloadName:  workloadName,
		WorkloadType:  workloadKind,
		ContainerName: parsed.Component,
		ContainerType: ci.containerType,
		ActualVersion: parsed.Version,
	}
	if ci.pod != nil {
		entry.Pods = append(entry.Pods, *ci.pod)
	}
	componentMap[component] = append(componentMap[component], entry)
}
