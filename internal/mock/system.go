package mock

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sound-priority/daemon/internal/mixer"
)

// System is an in-memory mixer.System. Devices and sessions can be added,
// removed and made to fail at runtime; watchers are notified synchronously
// from the goroutine that made the change.
type System struct {
	mu        sync.Mutex
	devices   map[string]*Device
	order     []string
	defaultID string

	deviceErr   error
	sessionsErr error
	watchErr    error

	deviceWatchers  map[int]func()
	sessionWatchers map[int]sessionWatcher
	nextWatch       int

	defaultCalls  int
	sessionsCalls int
}

type sessionWatcher struct {
	deviceID string
	fn       func()
}

func NewSystem() *System {
	return &System{
		devices:         make(map[string]*Device),
		deviceWatchers:  make(map[int]func()),
		sessionWatchers: make(map[int]sessionWatcher),
	}
}

// Device is an in-memory output device.
type Device struct {
	id       string
	name     string
	sessions []*Session
}

func (d *Device) ID() string   { return d.id }
func (d *Device) Name() string { return d.name }

// AddDevice registers a device. The first device added becomes the default.
func (s *System) AddDevice(id, name string) *Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &Device{id: id, name: name}
	s.devices[id] = d
	s.order = append(s.order, id)
	if s.defaultID == "" {
		s.defaultID = id
	}
	return d
}

// SetDefault switches the default device and notifies device watchers.
func (s *System) SetDefault(id string) error {
	s.mu.Lock()
	if _, ok := s.devices[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown device %q", id)
	}
	s.defaultID = id
	watchers := s.deviceWatchersLocked()
	s.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
	return nil
}

// AddSession adds a session to a device and notifies that device's session
// watchers.
func (s *System) AddSession(deviceID string, pid uint32, path string, volume float32) *Session {
	sess := &Session{pid: pid, path: path, volume: volume}

	s.mu.Lock()
	d, ok := s.devices[deviceID]
	if !ok {
		s.mu.Unlock()
		panic(fmt.Sprintf("mock: unknown device %q", deviceID))
	}
	d.sessions = append(d.sessions, sess)
	watchers := s.sessionWatchersLocked(deviceID)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
	return sess
}

// RemoveSession removes every session with pid from a device and notifies
// that device's session watchers.
func (s *System) RemoveSession(deviceID string, pid uint32) {
	s.mu.Lock()
	d, ok := s.devices[deviceID]
	if !ok {
		s.mu.Unlock()
		return
	}
	d.sessions = slices.DeleteFunc(d.sessions, func(sess *Session) bool { return sess.pid == pid })
	watchers := s.sessionWatchersLocked(deviceID)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}

// FailDefaultDevice makes DefaultDevice return err until called with nil.
func (s *System) FailDefaultDevice(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceErr = err
}

// FailSessions makes Sessions return err until called with nil.
func (s *System) FailSessions(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionsErr = err
}

// FailWatch makes both Watch methods return err until called with nil.
func (s *System) FailWatch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchErr = err
}

// Calls returns how many times DefaultDevice and Sessions have been called.
func (s *System) Calls() (defaultDevice, sessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultCalls, s.sessionsCalls
}

// Watchers returns the number of registered device and session watchers.
func (s *System) Watchers() (devices, sessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deviceWatchers), len(s.sessionWatchers)
}

// NotifyDevices fires device watchers without changing anything.
func (s *System) NotifyDevices() {
	s.mu.Lock()
	watchers := s.deviceWatchersLocked()
	s.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

func (s *System) DefaultDevice() (mixer.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultCalls++
	if s.deviceErr != nil {
		return nil, s.deviceErr
	}
	d, ok := s.devices[s.defaultID]
	if !ok {
		return nil, errors.New("no output devices")
	}
	return d, nil
}

func (s *System) Sessions(dev mixer.Device) ([]mixer.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionsCalls++
	if s.sessionsErr != nil {
		return nil, s.sessionsErr
	}
	d, ok := s.devices[dev.ID()]
	if !ok {
		return nil, fmt.Errorf("device %q removed", dev.ID())
	}
	infos := make([]mixer.SessionInfo, 0, len(d.sessions))
	for _, sess := range d.sessions {
		infos = append(infos, mixer.SessionInfo{PID: sess.pid, Path: sess.path, Control: sess})
	}
	return infos, nil
}

func (s *System) WatchDevices(fn func()) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	id := s.nextWatch
	s.nextWatch++
	s.deviceWatchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.deviceWatchers, id)
	}, nil
}

func (s *System) WatchSessions(dev mixer.Device, fn func()) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	id := s.nextWatch
	s.nextWatch++
	s.sessionWatchers[id] = sessionWatcher{deviceID: dev.ID(), fn: fn}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.sessionWatchers, id)
	}, nil
}

func (s *System) deviceWatchersLocked() []func() {
	out := make([]func(), 0, len(s.deviceWatchers))
	for _, fn := range s.deviceWatchers {
		out = append(out, fn)
	}
	return out
}

func (s *System) sessionWatchersLocked(deviceID string) []func() {
	var out []func()
	for _, w := range s.sessionWatchers {
		if w.deviceID == deviceID {
			out = append(out, w.fn)
		}
	}
	return out
}

// Session is an in-memory audio session implementing mixer.Control.
type Session struct {
	mu     sync.Mutex
	pid    uint32
	path   string
	volume float32
	peak   float32
	muted  bool

	peakErr   error
	volumeErr error
	setErr    error

	writes int
}

func (s *Session) PID() uint32 { return s.pid }

func (s *Session) Peak() (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peakErr != nil {
		return 0, s.peakErr
	}
	return s.peak, nil
}

func (s *Session) Volume() (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.volumeErr != nil {
		return 0, s.volumeErr
	}
	return s.volume, nil
}

func (s *Session) SetVolume(level float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.volume = level
	s.writes++
	return nil
}

func (s *Session) Muted() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.volumeErr != nil {
		return false, s.volumeErr
	}
	return s.muted, nil
}

func (s *Session) SetMuted(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.muted = muted
	return nil
}

// SetPeak sets the level the session reports as its instantaneous peak.
func (s *Session) SetPeak(peak float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peak = peak
}

// SetLevel sets the volume directly, bypassing the write counter.
func (s *Session) SetLevel(volume float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = volume
}

// Level returns the current volume without going through the error path.
func (s *Session) Level() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Writes returns how many successful SetVolume calls were made.
func (s *Session) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// FailPeak makes Peak return err until called with nil.
func (s *Session) FailPeak(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peakErr = err
}

// FailVolume makes Volume and Muted return err until called with nil.
func (s *Session) FailVolume(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumeErr = err
}

// FailSetVolume makes SetVolume and SetMuted return err until called with nil.
func (s *Session) FailSetVolume(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}
