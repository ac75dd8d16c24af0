package imageref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse("   ", "my-app")
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestParse_SimpleTag(t *testing.T) {
	ref, err := Parse("registry.example.com/org/my-app/backend:v1.2.3", "my-app")
	require.NoError(t, err)
	assert.Equal(t, "backend", ref.Component)
	assert.Equal(t, "v1.2.3", ref.Version)
	assert.Empty(t, ref.SubImage)
	assert.Equal(t, "registry.example.com", ref.Registry)
	assert.Equal(t, "registry.example.com/org/my-app/backend:v1.2.3", ref.FullImage)
}

func TestParse_UntaggedDefaultsToLatest(t *testing.T) {
	ref, err := Parse("registry.example.com/org/my-app/backend", "my-app")
	require.NoError(t, err)
	assert.Equal(t, "latest", ref.Version)
}

func TestParse_DigestStripped(t *testing.T) {
	withDigest, err := Parse("registry.example.com/org/my-app/backend:v1.2.3@sha256:deadbeef", "my-app")
	require.NoError(t, err)
	without, err := Parse("registry.example.com/org/my-app/backend:v1.2.3", "my-app")
	require.NoError(t, err)

	assert.Equal(t, without.Component, withDigest.Component)
	assert.Equal(t, without.Version, withDigest.Version)
	assert.Equal(t, without.SubImage, withDigest.SubImage)
	assert.Equal(t, without.Registry, withDigest.Registry)
}

func TestParse_DockerHubAliasesNormalize(t *testing.T) {
	for _, host := range []string{"docker.io", "index.docker.io", "registry-1.docker.io"} {
		ref, err := Parse(host+"/org/my-app/backend:v1", "my-app")
		require.NoError(t, err)
		assert.Equal(t, "docker.io", ref.Registry, "host %s should normalize", host)
	}
}

func TestParse_DockerHubSingleSegmentImpliesLibrary(t *testing.T) {
	ref, err := Parse("nginx:latest", "my-app")
	require.NoError(t, err)
	assert.Empty(t, ref.Registry)
	assert.Equal(t, "nginx", ref.Component)
}

func TestParse_NestedAnchor(t *testing.T) {
	ref, err := Parse("registry.example.com/org/my-app/portal/internal/server:v8.13.0", "my-app")
	require.NoError(t, err)
	assert.Equal(t, "portal", ref.Component)
	assert.Equal(t, "internal/server", ref.SubImage)
	assert.Equal(t, "v8.13.0", ref.Version)
}

func TestParse_AnchorIsLastSegment(t *testing.T) {
	ref, err := Parse("registry.example.com/org/my-app", "my-app")
	require.NoError(t, err)
	assert.Equal(t, "my-app", ref.Component)
	assert.Empty(t, ref.SubImage)
}

func TestParse_AnchorNotFoundFallsBackToLastSegment(t *testing.T) {
	ref, err := Parse("registry.example.com/org/other/backend:v1", "my-app")
	require.NoError(t, err)
	assert.Equal(t, "backend", ref.Component)
}

func TestParse_RightmostColonForTag(t *testing.T) {
	ref, err := Parse("localhost:5000/org/my-app/backend:v1.2.3", "my-app")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000", ref.Registry)
	assert.Equal(t, "v1.2.3", ref.Version)
	assert.Equal(t, "backend", ref.Component)
}

func TestParse_FullImagePreservesOriginalTrimmed(t *testing.T) {
	ref, err := Parse("  registry.example.com/org/my-app/backend:v1  ", "my-app")
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/org/my-app/backend:v1", ref.FullImage)
}
