package cmd

import (
	"net"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kubernify/kubernify/pkg/metrics"
)

func promRegistry(rec *metrics.Recorder) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(rec)
	return reg
}

func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
