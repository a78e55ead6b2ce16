package mock

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sound-priority/daemon/internal/logging"
)

// Pattern is how a demo session's peak level moves over time.
type Pattern string

const (
	// Steady plays continuously at roughly the same level.
	Steady Pattern = "steady"
	// Burst talks in short spurts with silence in between, like voice chat.
	Burst Pattern = "burst"
	// Stall is quiet most of the time with an occasional long stretch of sound.
	Stall Pattern = "stall"
	// Silent never makes a sound.
	Silent Pattern = "silent"
)

const (
	DeviceSpeakers   = "speakers"
	DeviceHeadphones = "headphones"

	// Ticks between default device switches.
	switchEvery = 600
	// A short-lived notification session joins every churnEvery ticks and
	// stays for churnLength ticks.
	churnEvery  = 300
	churnLength = 20
	churnPID    = 4242
)

type demoSession struct {
	pid     uint32
	path    string
	pattern Pattern
	level   float32
	byDev   map[string]*Session
}

// Generator drives a System with synthetic peak levels so the daemon can be
// run without a real sound server. The same sessions exist on both demo
// devices; the default device alternates between them.
type Generator struct {
	sys      *System
	clock    clockwork.Clock
	interval time.Duration
	rng      *rand.Rand
	log      *slog.Logger

	mu       sync.Mutex
	sessions []*demoSession
	churn    bool
	tick     int
}

type GeneratorOption func(*Generator)

func WithGeneratorClock(c clockwork.Clock) GeneratorOption {
	return func(g *Generator) { g.clock = c }
}

func WithGeneratorLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) { g.log = l.With("component", "mock") }
}

// WithSeed makes the jitter reproducible.
func WithSeed(seed int64) GeneratorOption {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

// NewDemo builds a System with two devices and a fixed set of sessions and
// returns it together with the generator that animates it.
func NewDemo(interval time.Duration, opts ...GeneratorOption) (*System, *Generator) {
	sys := NewSystem()
	sys.AddDevice(DeviceSpeakers, "Demo Speakers")
	sys.AddDevice(DeviceHeadphones, "Demo Headphones")

	g := &Generator{
		sys:      sys,
		clock:    clockwork.NewRealClock(),
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}

	defs := []struct {
		pid     uint32
		path    string
		pattern Pattern
		level   float32
	}{
		{0, "", Silent, 0},
		{1001, `C:\Games\game.exe`, Steady, 0.8},
		{1002, "/usr/bin/discord", Burst, 0.6},
		{1003, "/usr/lib/firefox/firefox", Stall, 0.25},
		{1004, "/usr/bin/spotify", Steady, 0.3},
	}
	for _, d := range defs {
		ds := &demoSession{
			pid:     d.pid,
			path:    d.path,
			pattern: d.pattern,
			level:   d.level,
			byDev:   make(map[string]*Session, 2),
		}
		for _, dev := range []string{DeviceSpeakers, DeviceHeadphones} {
			ds.byDev[dev] = sys.AddSession(dev, d.pid, d.path, 1)
		}
		g.sessions = append(g.sessions, ds)
	}

	return sys, g
}

// Start runs the generator until ctx is cancelled.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := g.clock.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			g.Step()
		}
	}
}

// Step advances the demo by one tick.
func (g *Generator) Step() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tick++

	if g.tick%switchEvery == 0 {
		next := DeviceHeadphones
		if g.defaultDevice() == DeviceHeadphones {
			next = DeviceSpeakers
		}
		if err := g.sys.SetDefault(next); err == nil {
			g.log.Info("mock.device_switched", "device", next, "tick", g.tick)
		}
	}

	switch phase := g.tick % churnEvery; {
	case phase == churnEvery-churnLength && !g.churn:
		g.sys.AddSession(g.defaultDevice(), churnPID, "/usr/bin/notify-send", 1)
		g.churn = true
		g.log.Debug("mock.session_joined", "pid", churnPID, "tick", g.tick)
	case phase == 0 && g.churn:
		g.sys.RemoveSession(DeviceSpeakers, churnPID)
		g.sys.RemoveSession(DeviceHeadphones, churnPID)
		g.churn = false
		g.log.Debug("mock.session_left", "pid", churnPID, "tick", g.tick)
	}

	for _, ds := range g.sessions {
		peak := g.peak(ds)
		for _, s := range ds.byDev {
			s.SetPeak(peak)
		}
	}
}

// Tick returns how many steps have run.
func (g *Generator) Tick() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tick
}

func (g *Generator) defaultDevice() string {
	g.sys.mu.Lock()
	defer g.sys.mu.Unlock()
	return g.sys.defaultID
}

func (g *Generator) peak(ds *demoSession) float32 {
	var on bool
	switch ds.pattern {
	case Steady:
		on = true
	case Burst:
		// 30 ticks of speech in every 80.
		on = g.tick%80 < 30
	case Stall:
		// 40 ticks of sound in every 200.
		phase := g.tick % 200
		on = phase >= 120 && phase < 160
	}
	if !on {
		return 0
	}
	jitter := (g.rng.Float32() - 0.5) * 0.1
	return clamp(ds.level+jitter, 0, 1)
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}
