// Package cmd implements Kubernify's command-line surface: flag
// definitions, config decoding, and the single RunE that wires a
// cluster.Session through discovery, mapping, and the verification
// driver, printing the resulting report to stdout.
package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/textlogger"
	"sigs.k8s.io/yaml"

	"github.com/kubernify/kubernify/pkg/cluster"
	"github.com/kubernify/kubernify/pkg/discovery"
	"github.com/kubernify/kubernify/pkg/driver"
	"github.com/kubernify/kubernify/pkg/health"
	"github.com/kubernify/kubernify/pkg/mapper"
	"github.com/kubernify/kubernify/pkg/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "kubernify",
	Short: "Verify that a Kubernetes deployment has converged on its intended versions",
	Long: `
Kubernify verifies that the workloads in a namespace have converged on
the versions recorded in a manifest, and that the pods backing them are
stable, before a CI/CD pipeline treats a rollout as complete.

  # verify the current context against a manifest, once
  kubernify --manifest '{"frontend":"1.2.3"}' --anchor myorg --dry-run

  # poll a GKE cluster until convergence or a 10-minute timeout
  kubernify --manifest @manifest.json --anchor myorg --gke-project my-gcp-project --timeout 600

  # expose health/metrics while verification runs as a sidecar
  kubernify --manifest @manifest.json --anchor myorg --health-addr :8080`,
	RunE: run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("manifest", "", "JSON object of component to expected version, or @path/to/file.json (required)")
	flags.String("anchor", "", "repository anchor segment used to split component/sub-image in an image reference (required)")
	flags.String("context", "", "kubeconfig context to use")
	flags.String("gke-project", "", "GCP project to resolve a GKE context for, via gcloud's auth plugin")
	flags.String("namespace", "", "namespace to verify (defaults to kubeconfig/in-cluster/\"default\")")
	flags.String("required-workloads", "", "comma-separated or JSON array of workload name substrings that must be present")
	flags.String("skip-containers", "", "comma-separated or JSON array of component/workload name substrings to skip")
	flags.String("component-aliases", "", "JSON object mapping a manifest key to the image-side component name it resolves from")
	flags.Int("timeout", 300, "overall verification timeout in seconds")
	flags.Int("restart-threshold", 3, "container restart count at or above which a pod is considered unstable")
	flags.Int("min-uptime", 0, "minimum pod uptime in seconds required for stability")
	flags.Bool("allow-zero-replicas", false, "treat a workload with 0 running pods as passing version verification")
	flags.Bool("dry-run", false, "run one discovery/verify pass and exit instead of polling until convergence")
	flags.Bool("include-statefulsets", false, "include StatefulSets in discovery")
	flags.Bool("include-daemonsets", false, "include DaemonSets in discovery")
	flags.Bool("include-jobs", false, "include Jobs and CronJobs in discovery")
	flags.Int("pool-workers", 0, "bounded worker-pool size for concurrent workload inspection (0 selects the default)")
	flags.Bool("insecure-skip-tls-verify", false, "skip TLS certificate verification against the API server")
	flags.String("health-addr", "", "address to serve /healthz, /readyz, and /metrics on (unset disables the surface)")
	flags.Int("log-level", 0, "klog verbosity level")

	rootCmd.MarkFlagsMutuallyExclusive("context", "gke-project")
	_ = rootCmd.MarkFlagRequired("manifest")
	_ = rootCmd.MarkFlagRequired("anchor")

	_ = viper.BindPFlags(flags)
}

// Execute runs the root command. Process exit is centralized here and
// in run's final exit-code mapping; no other package calls os.Exit.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	initLogging()

	manifest, err := decodeStringMap(viper.GetString("manifest"))
	if err != nil {
		return fmt.Errorf("--manifest: %w", err)
	}
	aliases, err := decodeStringMap(viper.GetString("component-aliases"))
	if err != nil {
		return fmt.Errorf("--component-aliases: %w", err)
	}
	requiredWorkloads := decodeCSVOrJSONArray(viper.GetString("required-workloads"))
	skipPatterns := decodeCSVOrJSONArray(viper.GetString("skip-containers"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := cluster.NewSession(ctx, cluster.Options{
		Context:    viper.GetString("context"),
		GKEProject: viper.GetString("gke-project"),
		Insecure:   viper.GetBool("insecure-skip-tls-verify"),
	})
	if err != nil {
		return fmt.Errorf("establishing cluster session: %w", err)
	}
	namespace := session.ResolveNamespace(viper.GetString("namespace"))

	m, err := mapper.New(mapper.Options{
		Anchor:       viper.GetString("anchor"),
		SkipPatterns: skipPatterns,
		Aliases:      aliases,
	})
	if err != nil {
		return fmt.Errorf("building component mapper: %w", err)
	}

	disc := discovery.New(session, discovery.Options{
		IncludeStatefulSets: viper.GetBool("include-statefulsets"),
		IncludeDaemonSets:   viper.GetBool("include-daemonsets"),
		IncludeJobs:         viper.GetBool("include-jobs"),
		PoolWorkers:         viper.GetInt("pool-workers"),
	})

	d := driver.New(disc, m, driver.Config{
		Namespace:         namespace,
		Manifest:          manifest,
		RequiredWorkloads: requiredWorkloads,
		SkipPatterns:      skipPatterns,
		Timeout:           time.Duration(viper.GetInt("timeout")) * time.Second,
		DryRun:            viper.GetBool("dry-run"),
		AllowZeroReplicas: viper.GetBool("allow-zero-replicas"),
		RestartThreshold:  viper.GetInt("restart-threshold"),
		MinUptimeSeconds:  viper.GetInt("min-uptime"),
		ContextLabel:      session.ContextName,
	})

	var checker *health.Checker
	var recorder *metrics.Recorder
	if addr := viper.GetString("health-addr"); addr != "" {
		checker = health.NewChecker()
		recorder = metrics.New()
		if err := serveHealthAndMetrics(addr, checker, recorder); err != nil {
			return fmt.Errorf("starting health/metrics server: %w", err)
		}
	}
	d.WithObservers(checker, recorder)

	report, err := d.Run(ctx)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	fmt.Println(string(out))

	os.Exit(report.Status.ExitCode())
	return nil
}

func serveHealthAndMetrics(addr string, checker *health.Checker, reg *metrics.Recorder) error {
	mux := http.NewServeMux()
	checker.Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry(reg), promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	listener, err := newListener(addr)
	if err != nil {
		return err
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			klog.Errorf("health/metrics server error: %v", err)
		}
	}()
	klog.V(0).Infof("health/metrics server listening on %s", addr)
	return nil
}

// decodeStringMap accepts either a JSON object or a YAML mapping — a
// "@path/to/manifest.yaml" reference is decoded with sigs.k8s.io/yaml,
// the same library client-go's own typed clients use to accept either
// form, since YAML is a superset of JSON.
func decodeStringMap(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}
	raw = readFileRef(raw)

	var out map[string]string
	if err := yaml.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("invalid JSON/YAML object: %w", err)
	}
	return out, nil
}

// decodeCSVOrJSONArray tries to decode raw as a JSON string array first,
// falling back to a plain comma-separated list.
func decodeCSVOrJSONArray(raw string) []string {
	if raw == "" {
		return nil
	}
	raw = readFileRef(raw)

	var asJSON []string
	if err := json.Unmarshal([]byte(raw), &asJSON); err == nil {
		return asJSON
	}
	return splitCSV(raw)
}

func splitCSV(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// readFileRef reads raw's contents from disk when it starts with "@".
func readFileRef(raw string) string {
	if len(raw) > 0 && raw[0] == '@' {
		data, err := os.ReadFile(raw[1:])
		if err != nil {
			return raw
		}
		return string(data)
	}
	return raw
}

func initLogging() {
	logLevel := viper.GetInt("log-level")
	config := textlogger.NewConfig(
		textlogger.Output(os.Stderr),
		textlogger.Verbosity(logLevel),
	)
	klog.SetLoggerWithOptions(textlogger.NewLogger(config))

	flagSet := flag.NewFlagSet("kubernify", flag.ContinueOnError)
	klog.InitFlags(flagSet)
	if err := flagSet.Parse([]string{"--v", strconv.Itoa(logLevel), "--logtostderr"}); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing log level: %v\n", err)
	}
}
