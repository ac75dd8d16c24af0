package cluster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kubernify/kubernify/pkg/errs"
)

func TestNewSession_ContextAndGKEProjectAreMutuallyExclusive(t *testing.T) {
	_, err := NewSession(context.Background(), Options{Context: "ctx", GKEProject: "proj"})
	require.Error(t, err)

	var cfgErr *errs.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestResolveNamespace_ExplicitWins(t *testing.T) {
	s := &Session{}
	assert.Equal(t, "staging", s.ResolveNamespace("staging"))
}

func TestResolveNamespace_FallsBackToDefault(t *testing.T) {
	s := &Session{}
	assert.Equal(t, "default", s.ResolveNamespace(""))
}

const testKubeconfig = `
apiVersion: v1
kind: Config
clusters:
- name: c1
  cluster: {server: "https://example.invalid"}
users:
- name: u1
  user: {}
contexts:
- name: gke_my-project_us-central1_main
  context: {cluster: c1, user: u1}
- name: minikube
  context: {cluster: c1, user: u1}
- name: staging-other-project
  context: {cluster: c1, user: u1}
current-context: minikube
`

func writeKubeconfig(t *testing.T) *clientcmd.ClientConfigLoadingRules {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0o600))
	return &clientcmd.ClientConfigLoadingRules{ExplicitPath: path}
}

func TestResolveGKEContext_PrefersGKENamingConvention(t *testing.T) {
	rules := writeKubeconfig(t)
	name, err := resolveGKEContext(rules, "my-project")
	require.NoError(t, err)
	assert.Equal(t, "gke_my-project_us-central1_main", name)
}

func TestResolveGKEContext_FallsBackToSubstringMatch(t *testing.T) {
	rules := writeKubeconfig(t)
	name, err := resolveGKEContext(rules, "other-project")
	require.NoError(t, err)
	assert.Equal(t, "staging-other-project", name)
}

func TestResolveGKEContext_UnknownProjectIsError(t *testing.T) {
	rules := writeKubeconfig(t)
	_, err := resolveGKEContext(rules, "no-such-project")
	require.Error(t, err)
}
