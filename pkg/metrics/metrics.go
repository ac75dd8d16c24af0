// Package metrics exposes Kubernify's verification loop as Prometheus
// metrics, for the optional --health-addr sidecar surface.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kubernify/kubernify/pkg/types"
)

// Recorder implements prometheus.Collector over the driver's own
// in-memory state rather than live cluster queries: unlike a scrape-time
// collector, Kubernify's verification loop runs on its own schedule and
// simply reports its last outcome whenever /metrics is polled.
type Recorder struct {
	mu sync.Mutex

	iterationsTotal   float64
	lastStatus        types.Status
	unstableWorkloads float64
	lastNamespace     string

	descIterations *prometheus.Desc
	descStatus     *prometheus.Desc
	descUnstable   *prometheus.Desc
}

// New returns a Recorder with all series zeroed.
func New() *Recorder {
	return &Recorder{
		descIterations: prometheus.NewDesc(
			"kubernify_verification_iterations_total",
			"Number of discovery/verify iterations run so far",
			nil, nil,
		),
		descStatus: prometheus.NewDesc(
			"kubernify_verification_status",
			"1 for the VerificationReport's current status, labeled by namespace and status",
			[]string{"namespace", "status"}, nil,
		),
		descUnstable: prometheus.NewDesc(
			"kubernify_workloads_unstable",
			"Count of workloads failing at least one stability check in the last iteration",
			[]string{"namespace"}, nil,
		),
	}
}

// RecordIteration updates the recorder after one discovery/verify pass.
func (r *Recorder) RecordIteration(namespace string, status types.Status, unstableWorkloads int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterationsTotal++
	r.lastNamespace = namespace
	r.lastStatus = status
	r.unstableWorkloads = float64(unstableWorkloads)
}

// Describe implements prometheus.Collector.
func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.descIterations
	ch <- r.descStatus
	ch <- r.descUnstable
}

// Collect implements prometheus.Collector.
func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(r.descIterations, prometheus.CounterValue, r.iterationsTotal)

	if r.lastStatus != "" {
		for _, status := range []types.Status{types.StatusPass, types.StatusFail, types.StatusTimeout, types.StatusSkipped} {
			v := 0.0
			if status == r.lastStatus {
				v = 1.0
			}
			ch <- prometheus.MustNewConstMetric(r.descStatus, prometheus.GaugeValue, v, r.lastNamespace, string(status))
		}
		ch <- prometheus.MustNewConstMetric(r.descUnstable, prometheus.GaugeValue, r.unstableWorkloads, r.lastNamespace)
	}
}

var _ prometheus.Collector = (*Recorder)(nil)
