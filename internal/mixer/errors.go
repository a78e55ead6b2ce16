package mixer

import "errors"

var (
	// ErrDeviceUnavailable is returned when no default output device can be
	// resolved. The previous snapshot is kept and resolution is retried.
	ErrDeviceUnavailable = errors.New("default output device unavailable")

	// ErrEnumerationFailed is returned when the session list of the current
	// device cannot be read. The previous session list is kept.
	ErrEnumerationFailed = errors.New("session enumeration failed")

	// ErrSessionControl marks a volume, mute or peak failure scoped to a
	// single session.
	ErrSessionControl = errors.New("session control failed")

	// ErrNotificationRegistration is returned when change notifications
	// cannot be registered. Periodic forced resyncs cover for it.
	ErrNotificationRegistration = errors.New("notification registration failed")
)
