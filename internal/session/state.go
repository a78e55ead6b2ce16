package session

import (
	"encoding/json"
	"slices"
	"time"
)

// Status is the ducking state: target sessions are either at their restore
// level or at their reduced level.
type Status int

const (
	Restore Status = iota
	Reduce
)

var statusNames = map[Status]string{
	Restore: "restore",
	Reduce:  "reduce",
}

var statusFromName = map[string]Status{
	"restore": Restore,
	"reduce":  Reduce,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := statusFromName[n]; ok {
		*s = v
	}
	return nil
}

// Role is how the classifier treated a session on the last tick.
type Role int

const (
	Measured Role = iota
	Target
	Excluded
)

var roleNames = map[Role]string{
	Measured: "measured",
	Target:   "target",
	Excluded: "excluded",
}

var roleFromName = map[string]Role{
	"measured": Measured,
	"target":   Target,
	"excluded": Excluded,
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return "unknown"
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := roleFromName[n]; ok {
		*r = v
	}
	return nil
}

// Health summarises how reliably the daemon can reach the audio subsystem.
type Health string

const (
	Healthy  Health = "healthy"
	Degraded Health = "degraded"
	Failed   Health = "failed"
)

// View is a read-only copy of one session as seen on a tick. Fields whose
// read failed hold their zero value and the matching Err flag is set.
type View struct {
	PID       uint32  `json:"pid"`
	Name      string  `json:"name"`
	Path      string  `json:"path,omitempty"`
	Volume    float32 `json:"volume"`
	Muted     bool    `json:"muted"`
	Peak      float32 `json:"peak"`
	Role      Role    `json:"role"`
	ReadError bool    `json:"readError,omitempty"`
}

// Snapshot is the daemon state published after every tick.
type Snapshot struct {
	Tick      uint64    `json:"tick"`
	Status    Status    `json:"status"`
	Peak      float32   `json:"peak"`
	Desired   float32   `json:"desired"`
	Fading    bool      `json:"fading"`
	Suspended bool      `json:"suspended"`
	Device    string    `json:"device,omitempty"`
	Health    Health    `json:"health"`
	Sessions  []View    `json:"sessions"`
	At        time.Time `json:"at"`
}

// Clone returns a copy that shares no slices with s.
func (s Snapshot) Clone() Snapshot {
	s.Sessions = slices.Clone(s.Sessions)
	return s
}

// Count returns how many sessions carry role r.
func (s Snapshot) Count(r Role) int {
	n := 0
	for _, v := range s.Sessions {
		if v.Role == r {
			n++
		}
	}
	return n
}
