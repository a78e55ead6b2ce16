package mixer

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sound-priority/daemon/internal/logging"
)

// Snapshot is the reconciled view of the default output device and its
// sessions. It is owned by one goroutine; only its ChangeFlags are shared.
type Snapshot struct {
	sys      System
	resolver ProcessResolver
	log      *slog.Logger
	flags    *ChangeFlags

	device   Device
	sessions []Session

	watching       bool
	cancelDevices  func()
	cancelSessions func()
	watchedDevice  string
}

type SnapshotOption func(*Snapshot)

func WithResolver(r ProcessResolver) SnapshotOption {
	return func(s *Snapshot) {
		if r != nil {
			s.resolver = r
		}
	}
}

func WithLogger(l *slog.Logger) SnapshotOption {
	return func(s *Snapshot) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSnapshot returns an empty snapshot. The first Sync resolves the device
// and its sessions.
func NewSnapshot(sys System, opts ...SnapshotOption) *Snapshot {
	s := &Snapshot{
		sys:      sys,
		resolver: ProcessTable{},
		log:      logging.Discard(),
		flags:    NewChangeFlags(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.flags.MarkDeviceChanged()
	return s
}

func (s *Snapshot) Flags() *ChangeFlags {
	return s.flags
}

// Register subscribes to device change notifications and, once a device is
// known, to session notifications on it. Errors wrap
// ErrNotificationRegistration and are not fatal: the snapshot still works
// from forced resyncs.
func (s *Snapshot) Register() error {
	if s.watching {
		return nil
	}
	cancel, err := s.sys.WatchDevices(s.flags.MarkDeviceChanged)
	if err != nil {
		return fmt.Errorf("%w: devices: %w", ErrNotificationRegistration, err)
	}
	s.cancelDevices = cancel
	s.watching = true

	if s.device != nil {
		return s.watchSessions()
	}
	return nil
}

// Close drops every notification registration.
func (s *Snapshot) Close() {
	s.unwatchSessions()
	if s.cancelDevices != nil {
		s.cancelDevices()
		s.cancelDevices = nil
	}
	s.watching = false
}

func (s *Snapshot) watchSessions() error {
	s.unwatchSessions()
	cancel, err := s.sys.WatchSessions(s.device, s.flags.MarkSessionsChanged)
	if err != nil {
		return fmt.Errorf("%w: sessions on %s: %w", ErrNotificationRegistration, s.device.ID(), err)
	}
	s.cancelSessions = cancel
	s.watchedDevice = s.device.ID()
	return nil
}

func (s *Snapshot) unwatchSessions() {
	if s.cancelSessions != nil {
		s.cancelSessions()
		s.cancelSessions = nil
	}
	s.watchedDevice = ""
}

// Sync reconciles the snapshot with the live system. A pending device change
// (or force) re-resolves the default device and implies a session refresh; a
// pending session change (or force) re-enumerates sessions. On failure the
// previous state is kept and the corresponding flag is raised again so the
// next call retries. The returned error joins every failure of this call.
func (s *Snapshot) Sync(force bool) error {
	deviceDirty := s.flags.device.take() || force
	sessionsDirty := s.flags.sessions.take() || force

	var errs []error
	deviceFailed := false

	if deviceDirty {
		dev, err := s.sys.DefaultDevice()
		switch {
		case err != nil:
			s.flags.MarkDeviceChanged()
			deviceFailed = true
			errs = append(errs, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err))
		case dev == nil:
			s.flags.MarkDeviceChanged()
			deviceFailed = true
			errs = append(errs, ErrDeviceUnavailable)
		default:
			if s.device == nil || s.device.ID() != dev.ID() {
				s.log.Info("default device changed", "device", dev.Name(), "id", dev.ID())
				// Session handles belong to the old device.
				s.sessions = nil
			}
			s.device = dev
			sessionsDirty = true
			if s.watching && s.watchedDevice != dev.ID() {
				if err := s.watchSessions(); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}

	if !sessionsDirty {
		return errors.Join(errs...)
	}

	if s.device == nil || deviceFailed {
		// Never enumerate through a device handle that may be stale.
		s.flags.MarkSessionsChanged()
		return errors.Join(errs...)
	}

	infos, err := s.sys.Sessions(s.device)
	if err != nil {
		s.flags.MarkSessionsChanged()
		errs = append(errs, fmt.Errorf("%w: %s: %w", ErrEnumerationFailed, s.device.ID(), err))
		return errors.Join(errs...)
	}
	s.sessions = s.buildSessions(infos)
	s.log.Debug("sessions synced", "device", s.device.Name(), "count", len(s.sessions))

	return errors.Join(errs...)
}

// buildSessions turns raw session infos into Sessions: at most one system
// sounds session is kept, and sessions whose executable cannot be resolved
// are dropped.
func (s *Snapshot) buildSessions(infos []SessionInfo) []Session {
	sessions := make([]Session, 0, len(infos))
	hasSystem := false
	for _, info := range infos {
		if info.Control == nil {
			continue
		}
		if info.PID == 0 {
			if !hasSystem {
				sessions = append(sessions, NewSession(0, "", info.Control))
				hasSystem = true
			}
			continue
		}

		path := info.Path
		if path == "" {
			resolved, err := s.resolver.ExePath(info.PID)
			if err != nil {
				s.log.Debug("skipping session with unknown process", "pid", info.PID, "err", err)
				continue
			}
			path = resolved
		}
		sessions = append(sessions, NewSession(info.PID, path, info.Control))
	}
	return sessions
}

// Device returns the current default device, or nil before the first
// successful resolution.
func (s *Snapshot) Device() Device {
	return s.device
}

// CurrentSessions returns the last successfully enumerated sessions.
func (s *Snapshot) CurrentSessions() []Session {
	return slices.Clone(s.sessions)
}
