package session

import (
	"path/filepath"
)

// PrivacyFilter masks and hides sessions before they leave the process.
// The zero value is a no-op filter.
type PrivacyFilter struct {
	MaskPaths bool
	MaskPIDs  bool
	// HiddenApps are glob patterns matched against session names.
	HiddenApps []string
}

// IsAllowed reports whether a session with the given name may be shown.
func (f *PrivacyFilter) IsAllowed(name string) bool {
	for _, pattern := range f.HiddenApps {
		if matched, _ := filepath.Match(pattern, name); matched {
			return false
		}
	}
	return true
}

// Apply returns a copy of v with sensitive fields masked.
func (f *PrivacyFilter) Apply(v View) View {
	if f.MaskPaths {
		v.Path = ""
	}
	if f.MaskPIDs {
		v.PID = 0
	}
	return v
}

// FilterSnapshot returns a copy of snap with hidden sessions removed and
// masking applied to the rest. The input is not modified.
func (f *PrivacyFilter) FilterSnapshot(snap Snapshot) Snapshot {
	if f.IsNoop() {
		return snap.Clone()
	}
	views := make([]View, 0, len(snap.Sessions))
	for _, v := range snap.Sessions {
		if !f.IsAllowed(v.Name) {
			continue
		}
		views = append(views, f.Apply(v))
	}
	snap.Sessions = views
	return snap
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskPaths && !f.MaskPIDs && len(f.HiddenApps) == 0
}
