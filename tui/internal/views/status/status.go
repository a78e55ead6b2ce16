// Package status renders the one-line daemon status bar.
package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/sound-priority/tui/internal/client"
	"github.com/sound-priority/tui/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Status    client.Status
	Peak      float32
	Desired   float32
	Fading    bool
	Suspended bool
	Device    string
	Health    client.Health
	Tick      uint64
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{Status: client.StatusRestore, Health: client.HealthHealthy}
}

// SetSnapshot copies the daemon-wide fields of a snapshot.
func (m *Model) SetSnapshot(s client.Snapshot) {
	m.Status = s.Status
	m.Peak = s.Peak
	m.Desired = s.Desired
	m.Fading = s.Fading
	m.Suspended = s.Suspended
	m.Device = s.Device
	m.Health = s.Health
	m.Tick = s.Tick
}

// SetStatus applies an immediate status flip.
func (m *Model) SetStatus(p client.StatusPayload) {
	m.Status = p.Status
	m.Peak = p.Peak
	m.Desired = p.Desired
	m.Tick = p.Tick
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	var duck string
	if m.Suspended {
		duck = lipgloss.NewStyle().Foreground(theme.ColorPaused).Bold(true).Render("SUSPENDED")
	} else {
		label := "RESTORE"
		if m.Status == client.StatusReduce {
			label = "REDUCE"
		}
		duck = lipgloss.NewStyle().Foreground(theme.StatusColor(string(m.Status))).Bold(true).Render(label)
	}

	levels := fmt.Sprintf("peak %3.0f%%  target %3.0f%%", m.Peak*100, m.Desired*100)
	if m.Fading {
		levels += " ~"
	}

	health := lipgloss.NewStyle().Foreground(theme.HealthColor(string(m.Health))).Render(string(m.Health))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + duck + sep + levels + sep + health
	if m.Device != "" {
		content += sep + theme.StyleDimmed.Render(m.Device)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
