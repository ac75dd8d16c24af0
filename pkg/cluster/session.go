// Package cluster provides a thin typed façade over the Kubernetes API:
// session construction (kubeconfig/in-cluster/GKE-context resolution),
// workload listing, paginated pod listing, and revision lookups. It is
// the sole collaborator in Kubernify that talks to a live (or fake)
// Kubernetes API server.
package cluster

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/kubernify/kubernify/pkg/errs"
)

const inClusterNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// Options configures session construction. Context and GKEProject are
// mutually exclusive; supplying neither resolves kubeconfig first, then
// in-cluster config as a fallback — never the reverse.
type Options struct {
	Context    string
	GKEProject string
	Insecure   bool
}

// Session is a typed, concurrency-safe accessor over one Kubernetes API
// server. The underlying typed clientset is safe for concurrent use
// without an additional mutex: client-go's REST client already
// serializes at the transport layer, so inspection tasks share one
// Session without contending on a lock.
type Session struct {
	ClientSet       kubernetes.Interface
	DiscoveryClient discovery.DiscoveryInterface
	RawConfig       clientcmd.ClientConfig
	ContextName     string
}

var gkeAuthPluginOnce sync.Once

// NewSession resolves cluster credentials per Options and builds a
// Session. The GKE auth-plugin PATH mutation, when needed, happens here
// — once, before any workload-inspection task is spawned, satisfying
// the single-mutation contract the concurrency model requires.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	if opts.Context != "" && opts.GKEProject != "" {
		return nil, errs.NewConfigError("cannot specify both --context and --gke-project")
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{}

	var resolvedContext string
	var restConfig *rest.Config
	var err error

	var rawConfig clientcmd.ClientConfig

	switch {
	case opts.Context != "":
		resolvedContext = opts.Context
		overrides.CurrentContext = resolvedContext
		rawConfig = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
		restConfig, err = rawConfig.ClientConfig()
		if err != nil {
			return nil, errs.NewInitError("failed to load kubeconfig for context "+resolvedContext, err)
		}
		klog.V(1).Infof("loaded kubeconfig for context %s", resolvedContext)

	case opts.GKEProject != "":
		gkeAuthPluginOnce.Do(ensureGKEAuthPluginOnPath)
		resolvedContext, err = resolveGKEContext(loadingRules, opts.GKEProject)
		if err != nil {
			return nil, errs.NewInitError("failed to resolve GKE context", err)
		}
		overrides.CurrentContext = resolvedContext
		rawConfig = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
		restConfig, err = rawConfig.ClientConfig()
		if err != nil {
			return nil, errs.NewInitError("failed to load kubeconfig for GKE project context "+resolvedContext, err)
		}
		klog.V(1).Infof("loaded kubeconfig for GKE project context %s", resolvedContext)

	default:
		// Kubeconfig is attempted first; in-cluster is the fallback.
		// The reverse order is never attempted.
		rawConfig = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
		restConfig, err = rawConfig.ClientConfig()
		if err != nil {
			klog.V(1).Infof("kubeconfig not usable (%v); falling back to in-cluster config", err)
			restConfig, err = rest.InClusterConfig()
			if err != nil {
				return nil, errs.NewInitError("no usable kubeconfig or in-cluster config found", err)
			}
			rawConfig = nil
			klog.V(1).Info("loaded in-cluster configuration")
		} else {
			raw, rawErr := rawConfig.RawConfig()
			if rawErr == nil {
				resolvedContext = raw.CurrentContext
			}
			klog.V(1).Infof("loaded default kubeconfig context %s", resolvedContext)
		}
	}

	if opts.Insecure {
		restConfig.TLSClientConfig.Insecure = true
		restConfig.TLSClientConfig.CAData = nil
		restConfig.TLSClientConfig.CAFile = ""
	}

	clientSet, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, errs.NewInitError("failed to build Kubernetes clientset", err)
	}
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, errs.NewInitError("failed to build discovery client", err)
	}

	return &Session{
		ClientSet:       clientSet,
		DiscoveryClient: discoveryClient,
		RawConfig:       rawConfig,
		ContextName:     resolvedContext,
	}, nil
}

// ServerVersion reports the API server's version string.
func (s *Session) ServerVersion() (string, error) {
	info, err := s.DiscoveryClient.ServerVersion()
	if err != nil {
		return "", fmt.Errorf("failed to read server version: %w", err)
	}
	return info.GitVersion, nil
}

// APIResources lists the resources served under groupVersion.
func (s *Session) APIResources(groupVersion string) ([]metav1.APIResource, error) {
	list, err := s.DiscoveryClient.ServerResourcesForGroupVersion(groupVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources for %s: %w", groupVersion, err)
	}
	return list.APIResources, nil
}

// ensureGKEAuthPluginOnPath scans CLOUDSDK_ROOT_DIR, GCLOUD_SDK_PATH, and
// PATH for google-cloud-sdk and appends its bin/ directory to PATH so
// gke-gcloud-auth-plugin is discoverable.
func ensureGKEAuthPluginOnPath() {
	if _, err := exec.LookPath("gke-gcloud-auth-plugin"); err == nil {
		return
	}

	path := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(path) {
		if !strings.Contains(entry, "google-cloud-sdk") {
			continue
		}
		sdkRoot := entry
		for filepath.Base(sdkRoot) != "google-cloud-sdk" && sdkRoot != "." && sdkRoot != string(filepath.Separator) {
			sdkRoot = filepath.Dir(sdkRoot)
		}
		if filepath.Base(sdkRoot) == "google-cloud-sdk" {
			bin := filepath.Join(sdkRoot, "bin")
			if !strings.Contains(path, bin) {
				_ = os.Setenv("PATH", path+string(os.PathListSeparator)+bin)
				klog.V(1).Infof("added %s to PATH for gke-gcloud-auth-plugin", bin)
			}
			return
		}
	}

	if sdkRootEnv := firstNonEmpty(os.Getenv("CLOUDSDK_ROOT_DIR"), os.Getenv("GCLOUD_SDK_PATH")); sdkRootEnv != "" {
		bin := filepath.Join(sdkRootEnv, "bin")
		_ = os.Setenv("PATH", path+string(os.PathListSeparator)+bin)
		klog.V(1).Infof("added %s to PATH for gke-gcloud-auth-plugin", bin)
		return
	}

	klog.Warning("gke-gcloud-auth-plugin not found on PATH and could not locate google-cloud-sdk; GKE authentication may fail")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveGKEContext picks the first kubeconfig context containing the
// GCP project ID, preferring the gke_<project>_<zone>_<cluster> naming
// convention.
func resolveGKEContext(loadingRules *clientcmd.ClientConfigLoadingRules, gkeProject string) (string, error) {
	raw, err := loadingRules.Load()
	if err != nil {
		return "", fmt.Errorf("could not load kubeconfig contexts for GKE project %s: %w", gkeProject, err)
	}

	for name := range raw.Contexts {
		if strings.HasPrefix(name, "gke_") {
			parts := strings.Split(name, "_")
			if len(parts) > 1 && parts[1] == gkeProject {
				return name, nil
			}
		}
	}
	for name := range raw.Contexts {
		if !strings.HasPrefix(name, "gke_") && strings.Contains(name, gkeProject) {
			return name, nil
		}
	}

	return "", fmt.Errorf("the context for GKE project %q does not exist in the kubeconfig file", gkeProject)
}

// ResolveNamespace implements the default-namespace precedence: explicit
// flag value, then the kubeconfig context's namespace, then the
// in-cluster service-account namespace file, then "default".
func (s *Session) ResolveNamespace(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if s.RawConfig != nil {
		if ns, _, err := s.RawConfig.Namespace(); err == nil && ns != "" {
			return ns
		}
	}
	if data, err := os.ReadFile(inClusterNamespaceFile); err == nil {
		if ns := strings.TrimSpace(string(data)); ns != "" {
			return ns
		}
	}
	return "default"
}
