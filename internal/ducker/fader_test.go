package ducker

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sound-priority/daemon/internal/mixer"
)

func TestFaderIdleUntilArmed(t *testing.T) {
	f := newFixture()
	ctl := f.add(1, "/usr/bin/game", 1, 0)

	var fader Fader
	res := fader.Step(f.sessions, 0.3, 0.05)

	assert.Zero(t, res.Writes)
	assert.Equal(t, float32(1), ctl.Level())
}

func TestFaderConvergesMonotonically(t *testing.T) {
	tests := []struct {
		name    string
		start   float32
		desired float32
		speed   float32
	}{
		{"down by 0.05", 1.0, 0.3, 0.05},
		{"up by 0.05", 0.3, 1.0, 0.05},
		{"uneven step", 0.9, 0.15, 0.1},
		{"tiny offset", 0.5, 0.51, 0.05},
		{"already there", 0.5, 0.5, 0.05},
		{"full swing", 0, 1, 0.07},
		{"whole range step", 0.2, 0.8, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctl := f.add(1, "/usr/bin/game", tt.start, 0)

			var fader Fader
			fader.Arm()

			maxTicks := int(math.Ceil(math.Abs(float64(tt.desired-tt.start))/float64(tt.speed) - 1e-6))
			if maxTicks == 0 {
				maxTicks = 1
			}

			prevGap := absDiff(ctl.Level(), tt.desired)
			ticks := 0
			for fader.Armed() {
				ticks++
				require.LessOrEqual(t, ticks, maxTicks, "did not converge in time")
				fader.Step(f.sessions, tt.desired, tt.speed)

				gap := absDiff(ctl.Level(), tt.desired)
				if gap > 0 {
					require.Less(t, gap, prevGap, "gap must shrink every tick")
				}
				prevGap = gap
			}
			assert.Equal(t, tt.desired, ctl.Level(), "must land exactly on the desired level")
		})
	}
}

func TestFaderScenarioFourteenTicks(t *testing.T) {
	f := newFixture()
	ctl := f.add(1, `C:\Games\game.exe`, 1.0, 0)

	var fader Fader
	fader.Arm()
	for k := 1; k <= 14; k++ {
		require.True(t, fader.Armed(), "tick %d", k)
		fader.Step(f.sessions, 0.3, 0.05)
		assert.InDelta(t, 1.0-0.05*float64(k), float64(ctl.Level()), 1e-5, "tick %d", k)
	}
	assert.Equal(t, float32(0.3), ctl.Level())
	assert.False(t, fader.Armed())
	assert.Equal(t, 14, ctl.Writes())
}

func TestFaderNonPositiveSpeedSnaps(t *testing.T) {
	f := newFixture()
	ctl := f.add(1, "/usr/bin/game", 1, 0)

	var fader Fader
	fader.Arm()
	fader.Step(f.sessions, 0.25, 0)

	assert.Equal(t, float32(0.25), ctl.Level())
	assert.False(t, fader.Armed())
}

func TestFaderSkipsFailingSessions(t *testing.T) {
	f := newFixture()
	broken := f.add(1, "/usr/bin/a", 1, 0)
	healthy := f.add(2, "/usr/bin/b", 1, 0)
	broken.FailVolume(errors.New("read failed"))

	var fader Fader
	fader.Arm()
	res := fader.Step(f.sessions, 0.5, 1)

	assert.Equal(t, float32(0.5), healthy.Level())
	assert.Equal(t, float32(1), broken.Level())
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], mixer.ErrSessionControl)
	assert.True(t, fader.Armed(), "unconverged session keeps the fader armed")

	broken.FailVolume(nil)
	broken.FailSetVolume(errors.New("write failed"))
	res = fader.Step(f.sessions, 0.5, 1)
	require.Len(t, res.Errors, 1)
	assert.True(t, fader.Armed())

	broken.FailSetVolume(nil)
	fader.Step(f.sessions, 0.5, 1)
	assert.Equal(t, float32(0.5), broken.Level())
	assert.False(t, fader.Armed())
}

func TestFaderNewTargetJoinsAtCurrentVolume(t *testing.T) {
	f := newFixture()
	first := f.add(1, "/usr/bin/a", 1, 0)

	var fader Fader
	fader.Arm()
	fader.Step(f.sessions, 0.5, 0.1)
	fader.Step(f.sessions, 0.5, 0.1)
	require.InDelta(t, 0.8, first.Level(), 1e-5)

	late := f.add(2, "/usr/bin/b", 0.6, 0)
	fader.Step(f.sessions, 0.5, 0.1)

	assert.InDelta(t, 0.7, first.Level(), 1e-5)
	assert.Equal(t, float32(0.5), late.Level(), "within one step, so it snaps")
}

func TestFaderNoTargetsDisarms(t *testing.T) {
	var fader Fader
	fader.Arm()
	fader.Step(nil, 0.5, 0.05)
	assert.False(t, fader.Armed())
}

func absDiff(a, b float32) float32 {
	if a > b {
		return a - b
	}
	return b - a
}
