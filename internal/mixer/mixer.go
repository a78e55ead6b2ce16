// Package mixer is the boundary between the ducking daemon and the host audio
// subsystem. A System exposes the default output device, the audio sessions
// playing on it, and change notifications; Snapshot keeps a reconciled,
// point-in-time view of that state for a single consumer goroutine.
package mixer

// Device identifies an output device. Handles are fetched fresh on every
// device resolution and are not reused once the default device changes.
type Device interface {
	// ID is stable for the lifetime of the physical endpoint and is used
	// to tell whether the default device actually changed.
	ID() string
	Name() string
}

// Control is the per-session volume capability. Every call may fail
// independently; a failure only concerns the session it was made on.
// All levels are scalars in [0, 1].
type Control interface {
	Peak() (float32, error)
	Volume() (float32, error)
	SetVolume(level float32) error
	Muted() (bool, error)
	SetMuted(muted bool) error
}

// SessionInfo is one audio session as reported by a System.
type SessionInfo struct {
	// PID of the owning process. Zero marks the system sounds session.
	PID uint32
	// Path is the executable path when the binding knows it. When empty
	// the snapshot resolves it from the PID.
	Path    string
	Control Control
}

// System is the set of capabilities the daemon needs from the host audio
// subsystem. Implementations must tolerate calls from a single goroutine;
// watch callbacks may be invoked from any goroutine, any number of times.
type System interface {
	DefaultDevice() (Device, error)
	Sessions(dev Device) ([]SessionInfo, error)

	// WatchDevices registers fn to be called whenever the default output
	// device may have changed. The returned cancel func unregisters it.
	WatchDevices(fn func()) (cancel func(), err error)

	// WatchSessions registers fn to be called whenever sessions are added
	// to or removed from dev.
	WatchSessions(dev Device, fn func()) (cancel func(), err error)
}
