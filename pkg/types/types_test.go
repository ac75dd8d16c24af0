package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusExitCode(t *testing.T) {
	cases := map[Status]int{
		StatusPass:    0,
		StatusFail:    1,
		StatusTimeout: 2,
		StatusSkipped: 1,
	}
	for status, want := range cases {
		assert.Equal(t, want, status.ExitCode(), "status %s", status)
	}

	// Any status outside the enum still maps to a valid exit code.
	assert.Equal(t, 1, Status("UNKNOWN").ExitCode())
}

func TestStabilityAuditResultStable(t *testing.T) {
	stable := StabilityAuditResult{}
	assert.True(t, stable.Stable())

	unstable := StabilityAuditResult{Errors: []string{"Pod x is not Ready"}}
	assert.False(t, unstable.Stable())
}
