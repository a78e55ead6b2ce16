// Package pulse implements mixer.System on top of the pactl command line
// client, which works against both PulseAudio and PipeWire.
//
// pactl does not expose per-stream peak meters, so a session's peak is
// reported as 1 while any of its streams is playing (uncorked and unmuted)
// and 0 otherwise.
package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sound-priority/daemon/internal/logging"
	"github.com/sound-priority/daemon/internal/mixer"
)

// volumeNorm is PA_VOLUME_NORM, the raw value of 100%.
const volumeNorm = 65536

const commandTimeout = 2 * time.Second

type sinkJSON struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type channelVolume struct {
	Value int `json:"value"`
}

type sinkInputJSON struct {
	Index      uint32                   `json:"index"`
	Sink       int                      `json:"sink"`
	Corked     bool                     `json:"corked"`
	Mute       bool                     `json:"mute"`
	Volume     map[string]channelVolume `json:"volume"`
	Properties map[string]string        `json:"properties"`
}

func parseSinks(data []byte) ([]sinkJSON, error) {
	var sinks []sinkJSON
	if err := json.Unmarshal(data, &sinks); err != nil {
		return nil, fmt.Errorf("parse sinks: %w", err)
	}
	return sinks, nil
}

func parseSinkInputs(data []byte) ([]sinkInputJSON, error) {
	var inputs []sinkInputJSON
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse sink inputs: %w", err)
	}
	return inputs, nil
}

// level is the mean of all channel volumes as a scalar clamped to [0, 1].
func (in sinkInputJSON) level() float32 {
	if len(in.Volume) == 0 {
		return 0
	}
	var sum float64
	for _, ch := range in.Volume {
		sum += float64(ch.Value)
	}
	v := sum / float64(len(in.Volume)) / volumeNorm
	return float32(math.Max(0, math.Min(1, v)))
}

// pid returns the owning process id, or 0 for streams without one (event
// sounds and the like).
func (in sinkInputJSON) pid() uint32 {
	raw, ok := in.Properties["application.process.id"]
	if !ok {
		return 0
	}
	pid, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(pid)
}

func (in sinkInputJSON) binary() string {
	return in.Properties["application.process.binary"]
}

// Device is a PulseAudio sink.
type Device struct {
	index int
	name  string
	desc  string
}

func (d *Device) ID() string   { return d.name }
func (d *Device) Name() string { return d.desc }

// System talks to the sound server through a Runner.
type System struct {
	runner Runner
	log    *slog.Logger

	mu           sync.Mutex
	devWatchers  map[int]func()
	sessWatchers map[int]func()
	nextWatch    int
	sub          *subscription
}

type Option func(*System)

func WithLogger(l *slog.Logger) Option {
	return func(s *System) { s.log = l.With("component", "pulse") }
}

func New(runner Runner, opts ...Option) *System {
	s := &System{
		runner:       runner,
		log:          logging.Discard(),
		devWatchers:  make(map[int]func()),
		sessWatchers: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *System) output(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return s.runner.Output(ctx, args...)
}

func (s *System) DefaultDevice() (mixer.Device, error) {
	out, err := s.output("get-default-sink")
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return nil, fmt.Errorf("no default sink")
	}

	data, err := s.output("-f", "json", "list", "sinks")
	if err != nil {
		return nil, err
	}
	sinks, err := parseSinks(data)
	if err != nil {
		return nil, err
	}
	for _, sink := range sinks {
		if sink.Name == name {
			return &Device{index: sink.Index, name: sink.Name, desc: sink.Description}, nil
		}
	}
	return nil, fmt.Errorf("default sink %q not listed", name)
}

// Sessions groups the sink inputs playing on dev by owning process.
func (s *System) Sessions(dev mixer.Device) ([]mixer.SessionInfo, error) {
	d, ok := dev.(*Device)
	if !ok {
		return nil, fmt.Errorf("foreign device %T", dev)
	}

	data, err := s.output("-f", "json", "list", "sink-inputs")
	if err != nil {
		return nil, err
	}
	inputs, err := parseSinkInputs(data)
	if err != nil {
		return nil, err
	}
	return s.group(d, inputs), nil
}

func (s *System) group(d *Device, inputs []sinkInputJSON) []mixer.SessionInfo {
	byPID := make(map[uint32]*Stream)
	var order []uint32
	for _, in := range inputs {
		if in.Sink != d.index {
			continue
		}
		pid := in.pid()
		st, ok := byPID[pid]
		if !ok {
			st = &Stream{sys: s}
			byPID[pid] = st
			order = append(order, pid)
		}
		st.inputs = append(st.inputs, inputState{
			index:  in.Index,
			volume: in.level(),
			muted:  in.Mute,
			corked: in.Corked,
		})
		if st.binary == "" {
			st.binary = in.binary()
		}
	}

	infos := make([]mixer.SessionInfo, 0, len(order))
	for _, pid := range order {
		st := byPID[pid]
		infos = append(infos, mixer.SessionInfo{PID: pid, Path: st.binary, Control: st})
	}
	return infos
}

func (s *System) WatchDevices(fn func()) (func(), error) {
	return s.watch(s.devWatchers, fn)
}

// WatchSessions ignores dev: pactl reports sink-input events for every
// sink, and a spurious re-enumeration is harmless.
func (s *System) WatchSessions(_ mixer.Device, fn func()) (func(), error) {
	return s.watch(s.sessWatchers, fn)
}

func (s *System) watch(set map[int]func(), fn func()) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub == nil {
		sub, err := subscribe(s.runner, s.dispatch, s.log)
		if err != nil {
			return nil, err
		}
		s.sub = sub
	}

	id := s.nextWatch
	s.nextWatch++
	set[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(set, id)
	}, nil
}

func (s *System) dispatch(ev event) {
	s.mu.Lock()
	var fns []func()
	switch ev.facility {
	case "server", "sink":
		for _, fn := range s.devWatchers {
			fns = append(fns, fn)
		}
	case "sink-input":
		for _, fn := range s.sessWatchers {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Close stops the event subscription.
func (s *System) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.close()
	}
}

type inputState struct {
	index  uint32
	volume float32
	muted  bool
	corked bool
}

// Stream is every sink input of one process on one sink, controlled as a
// unit. State is read at enumeration time and updated on every write.
type Stream struct {
	sys    *System
	binary string

	mu     sync.Mutex
	inputs []inputState
}

func (st *Stream) Peak() (float32, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, in := range st.inputs {
		if !in.corked && !in.muted {
			return 1, nil
		}
	}
	return 0, nil
}

func (st *Stream) Volume() (float32, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.inputs) == 0 {
		return 0, fmt.Errorf("stream has no inputs")
	}
	return st.inputs[0].volume, nil
}

func (st *Stream) SetVolume(level float32) error {
	raw := strconv.Itoa(int(math.Round(float64(level) * volumeNorm)))

	st.mu.Lock()
	indexes := st.indexes()
	st.mu.Unlock()

	for _, idx := range indexes {
		if _, err := st.sys.output("set-sink-input-volume", strconv.FormatUint(uint64(idx), 10), raw); err != nil {
			return err
		}
	}

	st.mu.Lock()
	for i := range st.inputs {
		st.inputs[i].volume = level
	}
	st.mu.Unlock()
	return nil
}

func (st *Stream) Muted() (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return slices.ContainsFunc(st.inputs, func(in inputState) bool { return in.muted }), nil
}

func (st *Stream) SetMuted(muted bool) error {
	flag := "0"
	if muted {
		flag = "1"
	}

	st.mu.Lock()
	indexes := st.indexes()
	st.mu.Unlock()

	for _, idx := range indexes {
		if _, err := st.sys.output("set-sink-input-mute", strconv.FormatUint(uint64(idx), 10), flag); err != nil {
			return err
		}
	}

	st.mu.Lock()
	for i := range st.inputs {
		st.inputs[i].muted = muted
	}
	st.mu.Unlock()
	return nil
}

func (st *Stream) indexes() []uint32 {
	out := make([]uint32, len(st.inputs))
	for i, in := range st.inputs {
		out[i] = in.index
	}
	return out
}
