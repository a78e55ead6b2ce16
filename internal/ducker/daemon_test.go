package ducker

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sound-priority/daemon/internal/config"
	"github.com/sound-priority/daemon/internal/logging"
	"github.com/sound-priority/daemon/internal/mixer"
	"github.com/sound-priority/daemon/internal/mock"
	"github.com/sound-priority/daemon/internal/session"
)

const testTick = 100 * time.Millisecond

func scenarioConfig() config.Ducking {
	return config.Ducking{
		Targets:        []string{"game.exe"},
		Exclude:        []string{},
		Sensitivity:    0.1,
		RestoreVolume:  1.0,
		ReduceVolume:   0.3,
		TransformSpeed: 0.05,
	}
}

// scenarioSystem has one target (game, pid 100) and one measured session
// (music, pid 200), both at full volume and silent.
func scenarioSystem() (*mock.System, *mock.Session, *mock.Session) {
	sys := mock.NewSystem()
	sys.AddDevice("spk", "Speakers")
	game := sys.AddSession("spk", 100, `C:\Games\game.exe`, 1.0)
	music := sys.AddSession("spk", 200, `C:\Music\music.exe`, 1.0)
	return sys, game, music
}

func newTestWorker(t *testing.T, sys mixer.System, cfg config.Ducking, opts ...Option) *worker {
	t.Helper()
	opts = append([]Option{WithClock(clockwork.NewFakeClock())}, opts...)
	w := newWorker(sys, cfg, newMailbox(), buildOptions(opts))
	require.NoError(t, w.snap.Register())
	t.Cleanup(w.snap.Close)
	return w
}

func ticks(w *worker, n int) {
	for i := 0; i < n; i++ {
		w.tick()
	}
}

func TestWorkerScenarioDucksTargetInFourteenTicks(t *testing.T) {
	sys, game, music := scenarioSystem()
	w := newTestWorker(t, sys, scenarioConfig())

	music.SetPeak(0.5)

	w.tick()
	assert.Equal(t, session.Restore, w.hyst.Status(), "one loud tick is below the reduce timeout")
	assert.Equal(t, float32(1), game.Level())
	assert.False(t, w.fader.Armed(), "startup fade converges immediately")

	for k := 1; k <= 14; k++ {
		w.tick()
		require.Equal(t, session.Reduce, w.hyst.Status())
		assert.InDelta(t, 1.0-0.05*float64(k), float64(game.Level()), 1e-5, "fade tick %d", k)
	}
	assert.Equal(t, float32(0.3), game.Level())
	assert.False(t, w.fader.Armed())

	ticks(w, 10)
	assert.Equal(t, float32(0.3), game.Level())
	assert.Equal(t, 14, game.Writes())
	assert.Equal(t, float32(1), music.Level(), "measured sessions are never faded")
}

func TestWorkerRestoresAfterSilence(t *testing.T) {
	sys, game, music := scenarioSystem()
	cfg := scenarioConfig()
	cfg.TransformSpeed = 1
	w := newTestWorker(t, sys, cfg)

	music.SetPeak(0.5)
	ticks(w, 2)
	require.Equal(t, float32(0.3), game.Level())

	music.SetPeak(0)
	ticks(w, 29)
	assert.Equal(t, session.Reduce, w.hyst.Status())
	assert.Equal(t, float32(0.3), game.Level())

	w.tick()
	assert.Equal(t, session.Restore, w.hyst.Status())
	assert.Equal(t, float32(1), game.Level())
}

func TestWorkerUpdateConfigMidFade(t *testing.T) {
	sys, game, music := scenarioSystem()
	w := newTestWorker(t, sys, scenarioConfig())

	music.SetPeak(0.5)
	ticks(w, 5) // flip on tick 2, then four steps
	require.InDelta(t, 0.8, game.Level(), 1e-5)

	cfg := scenarioConfig()
	cfg.ReduceVolume = 0.6
	w.handle(Command{Kind: CmdUpdate, Config: cfg})

	w.tick()
	assert.Equal(t, session.Reduce, w.hyst.Status(), "update does not reset status")
	assert.InDelta(t, 0.75, game.Level(), 1e-5, "progress is kept")

	ticks(w, 3)
	assert.Equal(t, float32(0.6), game.Level())
	assert.False(t, w.fader.Armed())
}

func TestWorkerUpdateConfigKeepsPending(t *testing.T) {
	sys, _, music := scenarioSystem()
	w := newTestWorker(t, sys, scenarioConfig())

	music.SetPeak(0.5)
	w.tick()
	require.Equal(t, testTick, w.hyst.Pending())

	w.handle(Command{Kind: CmdUpdate, Config: scenarioConfig()})
	w.tick()
	assert.Equal(t, session.Reduce, w.hyst.Status())
}

func TestWorkerTargetAndExcludedIsNeverMeasured(t *testing.T) {
	sys, game, _ := scenarioSystem()
	cfg := scenarioConfig()
	cfg.Targets = []string{"game"}
	cfg.Exclude = []string{"game"}
	w := newTestWorker(t, sys, cfg)

	game.SetPeak(0.9)
	ticks(w, 50)

	assert.Equal(t, session.Restore, w.hyst.Status())
	assert.Equal(t, float32(1), game.Level())
}

func TestWorkerPicksUpNewSessionsFromNotifications(t *testing.T) {
	sys, _, _ := scenarioSystem()
	w := newTestWorker(t, sys, scenarioConfig())
	w.tick()

	voice := sys.AddSession("spk", 300, `C:\Apps\voice.exe`, 1)
	voice.SetPeak(0.7)
	ticks(w, 2)

	assert.Equal(t, session.Reduce, w.hyst.Status())
}

func TestWorkerForcedResyncWithoutNotifications(t *testing.T) {
	sys, _, _ := scenarioSystem()
	sys.FailWatch(errors.New("unsupported"))
	w := newWorker(sys, scenarioConfig(), newMailbox(), buildOptions([]Option{
		WithClock(clockwork.NewFakeClock()),
		WithTiming(config.DaemonConfig{ForceResyncTicks: 5}),
	}))
	require.Error(t, w.snap.Register())

	w.tick()
	sys.AddSession("spk", 300, "/usr/bin/late", 1)

	ticks(w, 3)
	assert.Len(t, w.snap.CurrentSessions(), 2, "no notification, no resync yet")

	w.tick() // tick 5
	assert.Len(t, w.snap.CurrentSessions(), 3)
}

func TestWorkerSyncFailureKeepsLoopAlive(t *testing.T) {
	sys, game, music := scenarioSystem()
	w := newTestWorker(t, sys, scenarioConfig(), WithFailureThreshold(3))
	w.tick()

	sys.FailDefaultDevice(errors.New("unplugged"))
	sys.NotifyDevices()
	music.SetPeak(0.5)
	ticks(w, 2)

	assert.Equal(t, session.Degraded, w.health.status(w.threshold))
	assert.Equal(t, session.Reduce, w.hyst.Status(), "stale sessions keep driving the loop")
	assert.Less(t, game.Level(), float32(1))

	w.tick()
	assert.Equal(t, session.Failed, w.health.status(w.threshold))

	sys.FailDefaultDevice(nil)
	w.tick()
	assert.Equal(t, session.Healthy, w.health.status(w.threshold))
}

func TestWorkerPublishesSnapshots(t *testing.T) {
	sys, _, music := scenarioSystem()
	events := make(chan session.Event, 16)
	w := newTestWorker(t, sys, scenarioConfig(), WithObserver(events))

	music.SetPeak(0.5)
	ticks(w, 2)

	first := <-events
	assert.Equal(t, session.EventTick, first.Type)
	assert.Equal(t, uint64(1), first.Snapshot.Tick)
	assert.Equal(t, "Speakers", first.Snapshot.Device)
	require.Len(t, first.Snapshot.Sessions, 2)
	assert.Equal(t, session.Target, first.Snapshot.Sessions[0].Role)
	assert.Equal(t, session.Measured, first.Snapshot.Sessions[1].Role)
	assert.Equal(t, float32(0.5), first.Snapshot.Sessions[1].Peak)

	second := <-events
	assert.Equal(t, session.EventFlip, second.Type)
	assert.Equal(t, session.Reduce, second.Snapshot.Status)
	assert.Equal(t, float32(0.3), second.Snapshot.Desired)
	assert.True(t, second.Snapshot.Fading)
}

func TestWorkerDropsEventsWhenObserverIsFull(t *testing.T) {
	sys, _, _ := scenarioSystem()
	events := make(chan session.Event, 1)
	w := newTestWorker(t, sys, scenarioConfig(), WithObserver(events))

	ticks(w, 3)

	assert.Len(t, events, 1)
	assert.False(t, w.lastDropLog.IsZero(), "first drop is logged right away")
	assert.Equal(t, int64(1), w.dropped, "later drops wait for the next log window")
}

func TestWorkerSessionViewReadErrors(t *testing.T) {
	sys, game, _ := scenarioSystem()
	events := make(chan session.Event, 4)
	w := newTestWorker(t, sys, scenarioConfig(), WithObserver(events))

	game.FailVolume(errors.New("denied"))
	w.tick()

	ev := <-events
	require.NotEmpty(t, ev.Snapshot.Sessions)
	assert.True(t, ev.Snapshot.Sessions[0].ReadError)
	assert.False(t, ev.Snapshot.Sessions[1].ReadError)
}

// Loop tests drive the real goroutine with a fake clock.

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

// stopLoop closes d and keeps the fake clock moving until the loop exits.
func stopLoop(t *testing.T, d *Daemon, clock fakeClock) {
	t.Helper()
	d.Close()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-d.Done():
			return
		case <-deadline:
			t.Fatal("loop did not stop after Close")
		case <-time.After(5 * time.Millisecond):
			clock.Advance(testTick)
		}
	}
}

type loopHarness struct {
	t      *testing.T
	ctx    context.Context
	clock  fakeClock
	d      *Daemon
	events chan session.Event
}

func startLoop(t *testing.T, sys mixer.System, cfg config.Ducking) *loopHarness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClock()
	events := make(chan session.Event, 256)
	d := New(sys, cfg, WithClock(clock), WithObserver(events))
	t.Cleanup(func() { stopLoop(t, d, clock) })
	return &loopHarness{t: t, ctx: ctx, clock: clock, d: d, events: events}
}

// step waits for the loop to finish its current tick and lets n more start.
func (h *loopHarness) step(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(h.t, h.clock.BlockUntilContext(h.ctx, 1))
		h.clock.Advance(testTick)
	}
}

// settle waits for the loop to be asleep between ticks.
func (h *loopHarness) settle() {
	h.t.Helper()
	require.NoError(h.t, h.clock.BlockUntilContext(h.ctx, 1))
}

func (h *loopHarness) waitFor(t session.EventType) session.Event {
	h.t.Helper()
	for {
		select {
		case ev := <-h.events:
			if ev.Type == t {
				return ev
			}
		case <-h.ctx.Done():
			h.t.Fatalf("timed out waiting for %s event", t)
			return session.Event{}
		}
	}
}

func TestDaemonSuspendResume(t *testing.T) {
	sys, game, music := scenarioSystem()
	h := startLoop(t, sys, scenarioConfig())

	music.SetPeak(0.5)
	h.step(3) // reduce after two ticks, fading from the flip on
	h.settle()
	before := game.Level()
	require.Less(t, before, float32(1))

	h.d.Stop()
	h.clock.Advance(testTick)
	ev := h.waitFor(session.EventSuspended)
	assert.True(t, ev.Snapshot.Suspended)

	writes := game.Writes()
	music.SetPeak(0)
	h.clock.Advance(time.Minute)
	h.d.Update(scenarioConfig()) // ignored while suspended
	assert.Never(t, func() bool { return game.Writes() != writes }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, before, game.Level())

	music.SetPeak(0.5)
	h.d.Start()
	resumed := h.waitFor(session.EventResumed)
	assert.False(t, resumed.Snapshot.Suspended)
	assert.Equal(t, session.Reduce, resumed.Snapshot.Status)

	h.waitFor(session.EventTick)
	assert.InDelta(t, float64(before)-0.05, float64(game.Level()), 1e-5, "fade resumes where it left off")
}

func TestDaemonCloseStopsLoop(t *testing.T) {
	sys, _, _ := scenarioSystem()
	clock := clockwork.NewFakeClock()
	d := New(sys, scenarioConfig(), WithClock(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	d.Close()
	clock.Advance(testTick)

	select {
	case <-d.Done():
	case <-ctx.Done():
		t.Fatal("loop did not stop after Close")
	}

	devWatchers, sessWatchers := sys.Watchers()
	assert.Zero(t, devWatchers, "registrations are dropped on exit")
	assert.Zero(t, sessWatchers)

	// Commands after close are dropped silently.
	d.Start()
	d.Stop()
	d.Update(scenarioConfig())
}

func TestDaemonCloseWhileSuspended(t *testing.T) {
	sys, _, _ := scenarioSystem()
	clock := clockwork.NewFakeClock()
	events := make(chan session.Event, 64)
	d := New(sys, scenarioConfig(), WithClock(clock), WithObserver(events))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	d.Stop()
	clock.Advance(testTick)
	suspended := false
	for !suspended {
		select {
		case ev := <-events:
			suspended = ev.Type == session.EventSuspended
		case <-ctx.Done():
			t.Fatal("loop never suspended")
		}
	}

	d.Close()
	select {
	case <-d.Done():
	case <-ctx.Done():
		t.Fatal("suspended loop did not stop after Close")
	}
}

func TestDaemonResumeWhileRunningIsNoop(t *testing.T) {
	sys, game, music := scenarioSystem()
	h := startLoop(t, sys, scenarioConfig())

	h.d.Start()
	music.SetPeak(0.5)
	h.step(3)
	h.settle()

	assert.Less(t, game.Level(), float32(1), "loop kept ticking")
}

func TestDaemonRunsWithoutStart(t *testing.T) {
	sys, game, music := scenarioSystem()
	clock := clockwork.NewFakeClock()
	events := make(chan session.Event, 256)
	var logs bytes.Buffer
	d := New(sys, scenarioConfig(), WithClock(clock), WithObserver(events),
		WithLogger(logging.New("warn", "json", &logs)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	music.SetPeak(0.5)
	for i := 0; i < 3; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(testTick)
	}
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Less(t, game.Level(), float32(1), "a new daemon ducks without Start")

	stopLoop(t, d, clock)
	for len(events) > 0 {
		ev := <-events
		assert.NotEqual(t, session.EventResumed, ev.Type)
	}
	assert.Empty(t, logs.String(), "a clean start logs nothing at warn level")
}
