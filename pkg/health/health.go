// Package health exposes the optional liveness/readiness surface used
// when Kubernify runs long enough to be probed — a verification loop
// polling a namespace until convergence, serving on --health-addr.
// Liveness means the process is up; readiness means the first discovery
// pass against the cluster has completed, so a probe can distinguish
// "still authenticating" from "verifying".
package health

import (
	"net/http"
	"sync/atomic"
)

// Checker tracks whether the verification loop has completed its first
// discovery pass. Safe for concurrent use; the driver flips it while
// the HTTP surface reads it.
type Checker struct {
	firstPassDone atomic.Bool
}

// NewChecker returns a Checker that reports not-ready until the driver
// marks the first discovery pass complete.
func NewChecker() *Checker {
	return &Checker{}
}

// MarkReady records that a discovery pass has completed.
func (c *Checker) MarkReady() {
	c.firstPassDone.Store(true)
}

// Ready reports whether a discovery pass has completed.
func (c *Checker) Ready() bool {
	return c.firstPassDone.Load()
}

// Liveness answers 200 whenever the process is serving at all.
func (c *Checker) Liveness() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// Readiness answers 200 once the first discovery pass has completed and
// 503 before that.
func (c *Checker) Readiness() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("verification has not completed a discovery pass"))
	})
}

// Register mounts the probe endpoints on mux.
func (c *Checker) Register(mux *http.ServeMux) {
	mux.Handle("/healthz", c.Liveness())
	mux.Handle("/readyz", c.Readiness())
}
