package ducker

import (
	"fmt"
	"strings"

	"github.com/sound-priority/daemon/internal/mixer"
	"github.com/sound-priority/daemon/internal/session"
)

// Classification is the result of partitioning one tick's sessions.
type Classification struct {
	// Targets are the sessions the fader drives, at most one per PID.
	Targets []mixer.Session
	// Roles maps every classified PID to its role.
	Roles map[uint32]session.Role
	// Peak is the loudest peak among measured sessions, 0 when none.
	Peak float32
	// Measured counts sessions whose peak was read successfully.
	Measured int
	// Errors holds peak read failures, wrapped in mixer.ErrSessionControl.
	Errors []error
}

// Classify partitions sessions against the target and exclude name lists.
// Target membership is decided first: a session matching both lists is a
// target and is never measured.
func Classify(sessions []mixer.Session, targets, exclude []string) Classification {
	c := Classification{Roles: make(map[uint32]session.Role, len(sessions))}
	for _, s := range sessions {
		if _, seen := c.Roles[s.PID]; seen {
			continue
		}
		switch {
		case Matches(s, targets):
			c.Roles[s.PID] = session.Target
			c.Targets = append(c.Targets, s)
		case Matches(s, exclude):
			c.Roles[s.PID] = session.Excluded
		default:
			c.Roles[s.PID] = session.Measured
			peak, err := s.Peak()
			if err != nil {
				c.Errors = append(c.Errors, fmt.Errorf("%w: %s (%d) peak: %w", mixer.ErrSessionControl, s.Name, s.PID, err))
				continue
			}
			c.Measured++
			c.Peak = max(c.Peak, peak)
		}
	}
	return c
}

// Matches reports whether any non-empty pattern is a case-sensitive
// substring of the session's display name or executable file name.
func Matches(s mixer.Session, patterns []string) bool {
	exe := s.Exe()
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(s.Name, p) || strings.Contains(exe, p) {
			return true
		}
	}
	return false
}
