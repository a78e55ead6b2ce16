package mixer

import "strings"

// SystemSessionName is the display name of the system sounds session.
const SystemSessionName = "$system"

// Session is one application's audio stream on the current device. Two
// sessions are the same session iff their PIDs match.
type Session struct {
	PID  uint32
	Path string
	Name string
	Control
}

func NewSession(pid uint32, path string, control Control) Session {
	name := SystemSessionName
	if pid != 0 {
		name = DisplayName(path)
	}
	return Session{
		PID:     pid,
		Path:    path,
		Name:    name,
		Control: control,
	}
}

func (s Session) IsSystem() bool {
	return s.PID == 0
}

func (s Session) Equal(other Session) bool {
	return s.PID == other.PID
}

// Exe returns the executable file name with its extension, e.g. "game.exe".
func (s Session) Exe() string {
	if s.IsSystem() {
		return SystemSessionName
	}
	return baseName(s.Path)
}

// DisplayName derives a session name from an executable path: the last path
// element with its extension stripped. Both slash styles are accepted so that
// Windows paths reported over the wire are handled on any host.
func DisplayName(path string) string {
	base := baseName(path)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

func baseName(path string) string {
	path = strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
