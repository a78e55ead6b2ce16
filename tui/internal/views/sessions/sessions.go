// Package sessions renders the audio session table with spring-animated
// volume and peak meters.
package sessions

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/sound-priority/tui/internal/client"
	"github.com/sound-priority/tui/internal/theme"
)

const (
	fps        = 30
	meterWidth = 20
	nameWidth  = 18

	settleEpsilon = 0.002
)

// FrameMsg advances meter animation by one frame.
type FrameMsg time.Time

// Frame schedules the next animation frame.
func Frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

type meter struct {
	pos, vel float64
}

func (mt *meter) step(s harmonica.Spring, target float64) bool {
	mt.pos, mt.vel = s.Update(mt.pos, mt.vel, target)
	if abs(mt.pos-target) < settleEpsilon && abs(mt.vel) < settleEpsilon {
		mt.pos, mt.vel = target, 0
		return false
	}
	return true
}

type animated struct {
	volume meter
	peak   meter
}

// Model holds the session table state.
type Model struct {
	Rows     []client.View
	Selected int
	Width    int

	spring harmonica.Spring
	meters map[uint32]*animated
}

// New creates an empty table.
func New() Model {
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(fps), 8.0, 0.7),
		meters: make(map[uint32]*animated),
	}
}

// SetRows replaces the table contents. Rows are ordered by name then PID and
// the selection follows the previously selected PID when it is still present.
func (m *Model) SetRows(rows []client.View) {
	var selPID uint32
	hadSel := false
	if sel, ok := m.SelectedRow(); ok {
		selPID, hadSel = sel.PID, true
	}

	m.Rows = append(m.Rows[:0:0], rows...)
	sort.Slice(m.Rows, func(i, j int) bool {
		a, b := m.Rows[i], m.Rows[j]
		if a.Name != b.Name {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
		return a.PID < b.PID
	})

	seen := make(map[uint32]bool, len(m.Rows))
	for i, r := range m.Rows {
		seen[r.PID] = true
		if _, ok := m.meters[r.PID]; !ok {
			m.meters[r.PID] = &animated{}
		}
		if hadSel && r.PID == selPID {
			m.Selected = i
		}
	}
	for pid := range m.meters {
		if !seen[pid] {
			delete(m.meters, pid)
		}
	}
	m.clampSelection()
}

// Move shifts the selection by delta, wrapping at both ends.
func (m *Model) Move(delta int) {
	n := len(m.Rows)
	if n == 0 {
		m.Selected = 0
		return
	}
	m.Selected = ((m.Selected+delta)%n + n) % n
}

// SelectedRow returns the highlighted session.
func (m Model) SelectedRow() (client.View, bool) {
	if m.Selected < 0 || m.Selected >= len(m.Rows) {
		return client.View{}, false
	}
	return m.Rows[m.Selected], true
}

// Animate steps every meter toward its session's current level and reports
// whether any meter is still moving.
func (m *Model) Animate() bool {
	moving := false
	for _, r := range m.Rows {
		a := m.meters[r.PID]
		if a == nil {
			continue
		}
		if a.volume.step(m.spring, float64(r.Volume)) {
			moving = true
		}
		if a.peak.step(m.spring, float64(r.Peak)) {
			moving = true
		}
	}
	return moving
}

func (m *Model) clampSelection() {
	if m.Selected >= len(m.Rows) {
		m.Selected = len(m.Rows) - 1
	}
	if m.Selected < 0 {
		m.Selected = 0
	}
}

// View renders the table.
func (m Model) View() string {
	header := theme.StyleHeader.Render(fmt.Sprintf("  %-*s  %-8s  %-*s  %-*s", nameWidth+2, "SESSION", "PID", meterWidth+5, "VOLUME", meterWidth, "PEAK"))
	lines := []string{header}

	if len(m.Rows) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No audio sessions"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for i, r := range m.Rows {
		lines = append(lines, m.renderRow(i == m.Selected, r))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderRow(selected bool, r client.View) string {
	prefix := "  "
	if selected {
		prefix = "> "
	}

	role := string(r.Role)
	glyph := lipgloss.NewStyle().Foreground(theme.RoleColor(role)).Render(theme.RoleGlyph(role))
	nameStyle := lipgloss.NewStyle().Foreground(theme.RoleColor(role)).Width(nameWidth)
	if selected {
		nameStyle = nameStyle.Bold(true)
	}
	name := nameStyle.Render(truncate(r.Name, nameWidth))

	var vol, peak float64
	if a := m.meters[r.PID]; a != nil {
		vol, peak = a.volume.pos, a.peak.pos
	}

	volStr := Bar(vol, meterWidth) + fmt.Sprintf(" %3.0f%%", float64(r.Volume)*100)
	if r.Muted {
		volStr = theme.StyleDimmed.Render(strings.Repeat("-", meterWidth) + " mute")
	}
	if r.ReadError {
		volStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(fmt.Sprintf("%-*s", meterWidth+5, "read error"))
	}

	return fmt.Sprintf("%s%s %s  %-8d  %s  %s", prefix, glyph, name, r.PID, volStr, Bar(peak, meterWidth))
}

// Bar renders a horizontal meter of the given width filled to level.
func Bar(level float64, width int) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level*float64(width) + 0.5)
	fill := lipgloss.NewStyle().Foreground(theme.MeterColor(level)).Render(strings.Repeat("█", filled))
	rest := theme.StyleDimmed.Render(strings.Repeat("░", width-filled))
	return fill + rest
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
