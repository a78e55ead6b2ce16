package ducker

import (
	"time"

	"github.com/sound-priority/daemon/internal/config"
	"github.com/sound-priority/daemon/internal/session"
)

// Hysteresis debounces the loud/quiet signal into a Restore/Reduce status.
// A status change must be wanted for a full timeout before it happens;
// the timeout depends on the status being entered.
type Hysteresis struct {
	status  session.Status
	pending time.Duration

	tick           time.Duration
	reduceTimeout  time.Duration
	restoreTimeout time.Duration
}

func NewHysteresis(tick, reduceTimeout, restoreTimeout time.Duration) *Hysteresis {
	return &Hysteresis{
		status:         session.Restore,
		tick:           tick,
		reduceTimeout:  reduceTimeout,
		restoreTimeout: restoreTimeout,
	}
}

// Step feeds one tick's measured peak and reports whether the status flipped.
// A peak equal to the sensitivity counts as quiet.
func (h *Hysteresis) Step(peak, sensitivity float32) bool {
	desired := session.Restore
	if peak > sensitivity {
		desired = session.Reduce
	}

	if desired == h.status {
		h.pending = 0
		return false
	}

	h.pending += h.tick
	if h.pending < h.timeout(desired) {
		return false
	}
	h.status = desired
	h.pending = 0
	return true
}

func (h *Hysteresis) timeout(s session.Status) time.Duration {
	if s == session.Reduce {
		return h.reduceTimeout
	}
	return h.restoreTimeout
}

func (h *Hysteresis) Status() session.Status { return h.status }

// Pending is the time accumulated toward the opposite status.
func (h *Hysteresis) Pending() time.Duration { return h.pending }

// DesiredVolume is the level target sessions fade toward in status s.
func DesiredVolume(s session.Status, cfg config.Ducking) float32 {
	if s == session.Reduce {
		return cfg.ReduceVolume
	}
	return cfg.RestoreVolume
}
