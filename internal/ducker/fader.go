package ducker

import (
	"fmt"

	"github.com/sound-priority/daemon/internal/mixer"
)

// convergeEpsilon absorbs float32 rounding so a remaining offset of exactly
// one step is snapped instead of stepped past.
const convergeEpsilon = 1e-5

// Fader moves target volumes toward a desired level by at most one step
// per tick. It is idle until armed and disarms itself once every target
// reached the desired level on the same tick.
type Fader struct {
	armed bool
}

// FadeResult summarises one fader step.
type FadeResult struct {
	Writes    int
	Converged int
	Errors    []error
}

func (f *Fader) Arm()        { f.armed = true }
func (f *Fader) Armed() bool { return f.armed }

// Step applies one fade step to every target. A speed of zero or less
// jumps straight to desired. A session whose volume cannot be read or
// written is skipped and keeps the fader armed.
func (f *Fader) Step(targets []mixer.Session, desired, speed float32) FadeResult {
	var res FadeResult
	if !f.armed {
		return res
	}

	for _, t := range targets {
		current, err := t.Volume()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("%w: %s (%d) volume: %w", mixer.ErrSessionControl, t.Name, t.PID, err))
			continue
		}

		next, done := stepToward(current, desired, speed)
		if next != current {
			if err := t.SetVolume(next); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("%w: %s (%d) set volume: %w", mixer.ErrSessionControl, t.Name, t.PID, err))
				continue
			}
			res.Writes++
		}
		if done {
			res.Converged++
		}
	}

	if res.Converged == len(targets) {
		f.armed = false
	}
	return res
}

// stepToward returns the next volume and whether it equals desired.
func stepToward(current, desired, speed float32) (float32, bool) {
	offset := desired - current
	if speed > 0 && abs32(offset) > speed+convergeEpsilon {
		if offset > 0 {
			return clamp01(current + speed), false
		}
		return clamp01(current - speed), false
	}
	return desired, true
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
