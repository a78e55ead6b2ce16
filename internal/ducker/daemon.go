// Package ducker runs the ducking control loop: it keeps a mixer.Snapshot in
// sync, classifies sessions, debounces the measured peak into a
// Restore/Reduce status and fades target sessions toward the matching level.
package ducker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sound-priority/daemon/internal/config"
	"github.com/sound-priority/daemon/internal/logging"
	"github.com/sound-priority/daemon/internal/metrics"
	"github.com/sound-priority/daemon/internal/mixer"
	"github.com/sound-priority/daemon/internal/session"
)

type loopState int

const (
	stateRunning loopState = iota
	stateSuspended
	stateStopped
)

func (s loopState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateSuspended:
		return "suspended"
	default:
		return "stopped"
	}
}

type options struct {
	clock     clockwork.Clock
	log       *slog.Logger
	timing    config.DaemonConfig
	resolver  mixer.ProcessResolver
	observer  chan<- session.Event
	threshold int
}

type Option func(*options)

func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithTiming overrides the tick, debounce timeouts and forced resync period.
// Zero fields keep their defaults.
func WithTiming(t config.DaemonConfig) Option {
	return func(o *options) {
		if t.Tick > 0 {
			o.timing.Tick = t.Tick
		}
		if t.ReduceTimeout > 0 {
			o.timing.ReduceTimeout = t.ReduceTimeout
		}
		if t.RestoreTimeout > 0 {
			o.timing.RestoreTimeout = t.RestoreTimeout
		}
		if t.ForceResyncTicks > 0 {
			o.timing.ForceResyncTicks = t.ForceResyncTicks
		}
	}
}

func WithResolver(r mixer.ProcessResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithObserver makes the loop publish an event after every tick and on
// suspend/resume. Sends never block; events are dropped when ch is full.
func WithObserver(ch chan<- session.Event) Option {
	return func(o *options) { o.observer = ch }
}

// WithFailureThreshold sets how many consecutive failed syncs mark the audio
// subsystem as failed.
func WithFailureThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threshold = n
		}
	}
}

// Daemon is the handle to a running control loop. Its methods never block
// and never fail: commands are queued and applied by the loop on its next
// tick boundary.
type Daemon struct {
	mail *mailbox
	done chan struct{}
}

// New starts the control loop on its own goroutine in the running state.
// The loop owns sys from here on until Close is called and Done is closed.
func New(sys mixer.System, cfg config.Ducking, opts ...Option) *Daemon {
	d := &Daemon{
		mail: newMailbox(),
		done: make(chan struct{}),
	}
	w := newWorker(sys, cfg, d.mail, buildOptions(opts))
	go w.run(d.done)
	return d
}

func buildOptions(opts []Option) options {
	o := options{
		clock:     clockwork.NewRealClock(),
		log:       logging.Discard(),
		timing:    config.DefaultDaemon(),
		threshold: DefaultFailureThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Start resumes a suspended loop.
func (d *Daemon) Start() { d.send(Command{Kind: CmdResume}) }

// Stop suspends the loop: no ticks and no volume changes until Start.
func (d *Daemon) Stop() { d.send(Command{Kind: CmdSuspend}) }

// Update replaces the loop's configuration from the next tick on.
func (d *Daemon) Update(cfg config.Ducking) {
	d.send(Command{Kind: CmdUpdate, Config: cfg.Clone()})
}

func (d *Daemon) send(cmd Command) {
	d.mail.send(cmd)
}

// Close terminates the loop after it has drained the commands already
// queued. It does not wait; use Done for that.
func (d *Daemon) Close() { d.mail.close() }

// Done is closed once the loop has exited.
func (d *Daemon) Done() <-chan struct{} { return d.done }

// worker owns all loop state. Nothing here is touched from another
// goroutine except through the mailbox and the snapshot's change flags.
type worker struct {
	cfg       config.Ducking
	timing    config.DaemonConfig
	threshold int

	clock clockwork.Clock
	log   *slog.Logger

	snap   *mixer.Snapshot
	hyst   *Hysteresis
	fader  Fader
	health *syncHealth

	mail  *mailbox
	state loopState
	ticks uint64

	observer    chan<- session.Event
	last        session.Snapshot
	dropped     int64
	lastDropLog time.Time
}

func newWorker(sys mixer.System, cfg config.Ducking, mail *mailbox, o options) *worker {
	log := o.log.With("component", "daemon")
	snapOpts := []mixer.SnapshotOption{mixer.WithLogger(log)}
	if o.resolver != nil {
		snapOpts = append(snapOpts, mixer.WithResolver(o.resolver))
	}

	w := &worker{
		cfg:       cfg.Clone(),
		timing:    o.timing,
		threshold: o.threshold,
		clock:     o.clock,
		log:       log,
		snap:      mixer.NewSnapshot(sys, snapOpts...),
		hyst:      NewHysteresis(o.timing.Tick, o.timing.ReduceTimeout, o.timing.RestoreTimeout),
		health:    newSyncHealth(),
		mail:      mail,
		observer:  o.observer,
	}
	// Targets are brought to the restore level on the first tick.
	w.fader.Arm()
	return w
}

func (w *worker) run(done chan<- struct{}) {
	defer close(done)
	defer w.snap.Close()

	if err := w.snap.Register(); err != nil {
		metrics.SyncFailures.WithLabelValues("watch").Inc()
		w.log.Error("daemon.register_failed", "err", err)
	}

	w.log.Info("daemon.started",
		"tick", w.timing.Tick,
		"targets", w.cfg.Targets,
		"exclude", w.cfg.Exclude)

	for w.state != stateStopped {
		cmd, st := w.mail.tryRecv()
		switch st {
		case recvClosed:
			w.state = stateStopped
			continue
		case recvOK:
			w.handle(cmd)
			if w.state == stateStopped {
				continue
			}
		}

		w.tick()
		w.clock.Sleep(w.timing.Tick)
	}

	w.log.Info("daemon.stopped", "ticks", w.ticks)
}

// handle applies one command received while running. Suspend blocks here
// until the loop is resumed or the mailbox is closed.
func (w *worker) handle(cmd Command) {
	metrics.Commands.WithLabelValues(cmd.Kind.String()).Inc()
	switch cmd.Kind {
	case CmdUpdate:
		w.applyConfig(cmd.Config)
	case CmdSuspend:
		w.suspend()
	case CmdResume:
		w.log.Warn("daemon.resumed", "msg", "already running")
	}
}

func (w *worker) suspend() {
	w.state = stateSuspended
	w.log.Info("daemon.suspended")
	w.emit(session.EventSuspended)

	for {
		cmd, ok := w.mail.recv()
		if !ok {
			w.state = stateStopped
			return
		}
		if cmd.Kind == CmdResume {
			metrics.Commands.WithLabelValues(cmd.Kind.String()).Inc()
			w.state = stateRunning
			w.log.Info("daemon.resumed")
			w.emit(session.EventResumed)
			return
		}
		w.log.Warn("daemon.suspended", "msg", "command ignored", "command", cmd.Kind.String())
	}
}

// applyConfig swaps the configuration wholesale. Status and the pending
// debounce time are kept; the fader is armed so new levels and new targets
// take effect without waiting for the next flip.
func (w *worker) applyConfig(cfg config.Ducking) {
	w.cfg = cfg
	w.fader.Arm()
	w.log.Info("daemon.updated",
		"targets", cfg.Targets,
		"exclude", cfg.Exclude,
		"sensitivity", cfg.Sensitivity,
		"restore_volume", cfg.RestoreVolume,
		"reduce_volume", cfg.ReduceVolume,
		"transform_speed", cfg.TransformSpeed)
}

func (w *worker) tick() {
	start := w.clock.Now()
	w.ticks++

	force := w.timing.ForceResyncTicks > 0 && w.ticks%uint64(w.timing.ForceResyncTicks) == 0
	w.sync(force)

	sessions := w.snap.CurrentSessions()
	class := Classify(sessions, w.cfg.Targets, w.cfg.Exclude)
	w.sessionErrors("peak", class.Errors)

	flipped := w.hyst.Step(class.Peak, w.cfg.Sensitivity)
	status := w.hyst.Status()
	if flipped {
		w.fader.Arm()
		metrics.StatusFlips.WithLabelValues(status.String()).Inc()
		w.log.Info("daemon.status_changed",
			"status", status.String(),
			"peak", class.Peak,
			"targets", len(class.Targets))
	}

	desired := DesiredVolume(status, w.cfg)
	res := w.fader.Step(class.Targets, desired, w.cfg.TransformSpeed)
	w.sessionErrors("volume", res.Errors)
	metrics.VolumeWrites.Add(float64(res.Writes))

	metrics.MeasuredPeak.Set(float64(class.Peak))
	metrics.CurrentStatus.Set(float64(status))
	metrics.Sessions.WithLabelValues(session.Target.String()).Set(float64(len(class.Targets)))
	metrics.Sessions.WithLabelValues(session.Measured.String()).Set(float64(class.Measured))

	if w.observer != nil {
		w.last = w.buildSnapshot(sessions, class, desired)
		ev := session.EventTick
		if flipped {
			ev = session.EventFlip
		}
		w.publish(ev, w.last)
	}

	metrics.TickDuration.Observe(w.clock.Since(start).Seconds())
}

func (w *worker) sync(force bool) {
	err := w.snap.Sync(force)
	now := w.clock.Now()
	if err != nil {
		if errors.Is(err, mixer.ErrDeviceUnavailable) {
			metrics.SyncFailures.WithLabelValues("device").Inc()
		}
		if errors.Is(err, mixer.ErrEnumerationFailed) {
			metrics.SyncFailures.WithLabelValues("sessions").Inc()
		}
		if errors.Is(err, mixer.ErrNotificationRegistration) {
			metrics.SyncFailures.WithLabelValues("watch").Inc()
		}
		w.health.recordFailure(err, now)
		w.log.Debug("daemon.sync_error", "err", err)
	} else {
		w.health.recordSuccess()
	}

	if st, changed := w.health.transition(w.threshold, now); changed {
		if st == session.Healthy {
			w.log.Info("daemon.sync_recovered")
		} else {
			w.log.Warn("daemon.sync_failed", "health", string(st), "err", w.health.lastError())
		}
	}
}

func (w *worker) sessionErrors(op string, errs []error) {
	for _, err := range errs {
		metrics.SessionErrors.WithLabelValues(op).Inc()
		w.log.Debug("daemon.session_error", "op", op, "err", err)
	}
}

// buildSnapshot reads every session once more for display. Read failures
// only mark the view.
func (w *worker) buildSnapshot(sessions []mixer.Session, class Classification, desired float32) session.Snapshot {
	snap := session.Snapshot{
		Tick:     w.ticks,
		Status:   w.hyst.Status(),
		Peak:     class.Peak,
		Desired:  desired,
		Fading:   w.fader.Armed(),
		Health:   w.health.status(w.threshold),
		Sessions: make([]session.View, 0, len(sessions)),
		At:       w.clock.Now(),
	}
	if dev := w.snap.Device(); dev != nil {
		snap.Device = dev.Name()
	}
	for _, s := range sessions {
		role, ok := class.Roles[s.PID]
		if !ok {
			continue
		}
		snap.Sessions = append(snap.Sessions, viewOf(s, role))
	}
	return snap
}

func viewOf(s mixer.Session, role session.Role) session.View {
	v := session.View{PID: s.PID, Name: s.Name, Path: s.Path, Role: role}
	var err error
	var readErr bool
	if v.Volume, err = s.Volume(); err != nil {
		readErr = true
	}
	if v.Muted, err = s.Muted(); err != nil {
		readErr = true
	}
	if v.Peak, err = s.Peak(); err != nil {
		readErr = true
	}
	v.ReadError = readErr
	return v
}

// emit publishes the last snapshot with the current run state.
func (w *worker) emit(t session.EventType) {
	if w.observer == nil {
		return
	}
	snap := w.last.Clone()
	snap.Suspended = w.state == stateSuspended
	snap.At = w.clock.Now()
	if snap.Health == "" {
		snap.Health = w.health.status(w.threshold)
	}
	w.publish(t, snap)
}

// publish never blocks the loop. Dropped events are counted and logged at
// most once per 10 seconds.
func (w *worker) publish(t session.EventType, snap session.Snapshot) {
	select {
	case w.observer <- session.Event{Type: t, Snapshot: snap.Clone()}:
	default:
		w.dropped++
		metrics.ObserverDrops.Inc()
		now := w.clock.Now()
		if w.lastDropLog.IsZero() || now.Sub(w.lastDropLog) >= 10*time.Second {
			w.log.Warn("daemon.events_dropped", "count", w.dropped)
			w.dropped = 0
			w.lastDropLog = now
		}
	}
}
