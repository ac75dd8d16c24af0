// Package errs defines the error taxonomy shared across Kubernify's
// packages, so callers can tell failure kinds apart with errors.As
// instead of string matching.
package errs

import "fmt"

// ConfigError marks a pre-flight configuration mistake: invalid manifest
// JSON, a duplicate alias target, mutually exclusive cluster selectors,
// or a missing required flag. Always fatal before the verification loop
// starts; exit 1, no report.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config error: " + e.Msg }

// NewConfigError builds a ConfigError from a format string.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// InitError marks a failure to authenticate or resolve a cluster
// session. Fatal before the loop starts; exit 1, no report.
type InitError struct {
	Msg string
	Err error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return "init error: " + e.Msg + ": " + e.Err.Error()
	}
	return "init error: " + e.Msg
}

func (e *InitError) Unwrap() error { return e.Err }

// NewInitError wraps err with a descriptive init-failure message.
func NewInitError(msg string, err error) *InitError {
	return &InitError{Msg: msg, Err: err}
}

// TransientDiscoveryError marks a listing failure that the driver should
// retry. In --dry-run, a non-retryable transient error is fatal (exit 1).
type TransientDiscoveryError struct {
	Err error
}

func (e *TransientDiscoveryError) Error() string {
	return "transient discovery error: " + e.Err.Error()
}

func (e *TransientDiscoveryError) Unwrap() error { return e.Err }

// NewTransientDiscoveryError wraps err as a TransientDiscoveryError.
func NewTransientDiscoveryError(err error) *TransientDiscoveryError {
	return &TransientDiscoveryError{Err: err}
}

// ErrNoSelector marks a workload whose pod label selector could not be
// determined (e.g. a Job with neither match_labels nor a controller-uid
// label to fall back to).
var ErrNoSelector = fmt.Errorf("no pod selector available for workload")
