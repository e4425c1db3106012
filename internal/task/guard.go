package task

import (
	"fmt"
)

// failureGuard counts consecutive failed ticks of one task. It trips once the
// count reaches the threshold; any successful tick resets it. The owning task's
// mutex serialises access.
type failureGuard struct {
	threshold int
	failures  int
	lastErr   error
	tripped   bool
}

func newFailureGuard(threshold, failures int) *failureGuard {
	if threshold < 1 {
		threshold = 1
	}
	return &failureGuard{threshold: threshold, failures: failures}
}

// RecordFailure counts err and reports whether this failure tripped the guard
func (g *failureGuard) RecordFailure(err error) bool {
	g.failures++
	g.lastErr = err
	if g.tripped || g.failures < g.threshold {
		return false
	}
	g.tripped = true
	return true
}

// RecordSuccess resets the consecutive failure count
func (g *failureGuard) RecordSuccess() {
	g.failures = 0
	g.lastErr = nil
}

func (g *failureGuard) Failures() int {
	return g.failures
}

func (g *failureGuard) Threshold() int {
	return g.threshold
}

// Reason describes why the guard tripped
func (g *failureGuard) Reason() string {
	if g.lastErr == nil {
		return fmt.Sprintf("%d consecutive tick failures", g.failures)
	}
	return fmt.Sprintf("%d consecutive tick failures, last: %v", g.failures, g.lastErr)
}
