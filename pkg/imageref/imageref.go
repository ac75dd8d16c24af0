// Package imageref parses container image references into structured
// (component, version, sub_image, registry) tuples, applying Docker Hub
// normalization and anchor-based component extraction. Pure functions,
// no I/O, no Kubernetes imports.
package imageref

import (
	"errors"
	"strings"

	"github.com/kubernify/kubernify/pkg/types"
)

// ErrInvalidImage is returned when the input image string is empty or
// whitespace-only.
var ErrInvalidImage = errors.New("imageref: image reference must not be empty")

var dockerHubHosts = map[string]struct{}{
	"docker.io":            {},
	"index.docker.io":      {},
	"registry-1.docker.io": {},
}

const dockerHubCanonical = "docker.io"

// hasRegistryHost reports whether the first path segment looks like a
// registry host: the well-known (if informal) OCI heuristic of
// containing a dot or a colon.
func hasRegistryHost(firstSegment string) bool {
	return strings.ContainsAny(firstSegment, ".:")
}

func normalizeDockerHub(registry string, pathSegments []string) (string, []string) {
	if _, ok := dockerHubHosts[registry]; ok {
		registry = dockerHubCanonical
	}

	isDockerHub := registry == "" || registry == dockerHubCanonical
	if isDockerHub && len(pathSegments) == 1 {
		pathSegments = append([]string{"library"}, pathSegments...)
	}
	return registry, pathSegments
}

// Parse decomposes an image reference string into an ImageReference,
// using repositoryAnchor as the path segment that separates the
// organizational prefix from the component identity.
func Parse(image, repositoryAnchor string) (types.ImageReference, error) {
	if strings.TrimSpace(image) == "" {
		return types.ImageReference{}, ErrInvalidImage
	}
	image = strings.TrimSpace(image)

	// Step 1: strip any @-suffix (digest pin) before parsing.
	working := image
	if idx := strings.Index(working, "@"); idx >= 0 {
		working = working[:idx]
	}

	// Step 2: extract the tag from the last path segment, splitting on
	// the rightmost colon so host:port constructions (already stripped
	// of their registry segment below) never confuse the tag split.
	segments := strings.Split(working, "/")
	lastSegment := segments[len(segments)-1]

	var version string
	if idx := strings.LastIndex(lastSegment, ":"); idx >= 0 {
		segments[len(segments)-1] = lastSegment[:idx]
		version = lastSegment[idx+1:]
	} else {
		version = "latest"
	}

	// Step 3: determine the registry host.
	var registry string
	var pathSegments []string
	if len(segments) > 1 && hasRegistryHost(segments[0]) {
		registry = segments[0]
		pathSegments = segments[1:]
	} else {
		pathSegments = segments
	}

	// Step 4: Docker Hub normalization.
	registry, pathSegments = normalizeDockerHub(registry, pathSegments)

	// Step 5: locate the repository anchor and extract component/sub_image.
	var component, subImage string
	anchorIndex := indexOf(pathSegments, repositoryAnchor)
	switch {
	case anchorIndex < 0:
		// Anchor not found: fall back to the last path segment.
		component = pathSegments[len(pathSegments)-1]
	case anchorIndex == len(pathSegments)-1:
		// Anchor is the last segment: degenerate case, anchor itself
		// becomes the component.
		component = repositoryAnchor
	default:
		rest := pathSegments[anchorIndex+1:]
		component = rest[0]
		if len(rest) > 1 {
			subImage = strings.Join(rest[1:], "/")
		}
	}

	return types.ImageReference{
		Component: component,
		Version:   version,
		SubImage:  subImage,
		FullImage: image,
		Registry:  registry,
	}, nil
}

func indexOf(segments []string, target string) int {
	for i, s := range segments {
		if s == target {
			return i
		}
	}
	return -1
}
