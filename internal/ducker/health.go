package ducker

import (
	"time"

	"github.com/sound-priority/daemon/internal/session"
)

// DefaultFailureThreshold is the number of consecutive failed syncs after
// which the audio subsystem is reported as failed.
const DefaultFailureThreshold = 10

// syncHealth tracks consecutive snapshot sync failures. It is owned by the
// worker goroutine; readers get copies through published snapshots.
type syncHealth struct {
	failures      int
	lastErr       string
	lastFail      time.Time
	lastEmitted   session.Health
	lastEmittedAt time.Time
}

func newSyncHealth() *syncHealth {
	return &syncHealth{lastEmitted: session.Healthy}
}

func (h *syncHealth) recordSuccess() {
	h.failures = 0
	h.lastErr = ""
}

func (h *syncHealth) recordFailure(err error, now time.Time) {
	h.failures++
	h.lastErr = err.Error()
	h.lastFail = now
}

func (h *syncHealth) status(threshold int) session.Health {
	switch {
	case h.failures >= threshold:
		return session.Failed
	case h.failures > 0:
		return session.Degraded
	default:
		return session.Healthy
	}
}

// transition returns the current status and whether it differs from the
// last one returned by transition.
func (h *syncHealth) transition(threshold int, now time.Time) (session.Health, bool) {
	st := h.status(threshold)
	if st == h.lastEmitted {
		return st, false
	}
	h.lastEmitted = st
	h.lastEmittedAt = now
	return st, true
}

func (h *syncHealth) lastError() string {
	return h.lastErr
}
