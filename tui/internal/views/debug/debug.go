// Package debug provides a scrollable log of protocol and control events.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/sound-priority/tui/internal/theme"
)

const maxEntries = 200

// Kind tags an entry with its origin.
type Kind string

const (
	KindWS      Kind = "ws"
	KindControl Kind = "ctl"
	KindStatus  Kind = "duck"
	KindError   Kind = "err"
)

// Entry is a single event log line.
type Entry struct {
	Time    time.Time
	Kind    Kind
	Message string
}

// Model holds debug log state.
type Model struct {
	Entries []Entry

	now    func() time.Time
	vp     viewport.Model
	follow bool
}

// New creates an empty debug model.
func New() Model {
	return Model{now: time.Now, vp: viewport.New(40, 3), follow: true}
}

// Add appends a log entry, dropping the oldest past maxEntries. The viewport
// stays pinned to the newest entry unless the user has scrolled away.
func (m *Model) Add(kind Kind, format string, args ...any) {
	m.Entries = append(m.Entries, Entry{Time: m.now(), Kind: kind, Message: fmt.Sprintf(format, args...)})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.refresh()
}

// Resize fits the viewport into an overlay of the given outer size.
func (m *Model) Resize(width, height int) {
	m.vp.Width = max(width-8, 20)
	m.vp.Height = max(height-8, 3)
	m.refresh()
}

// ScrollUp moves the viewport toward older entries.
func (m *Model) ScrollUp(n int) {
	m.vp.LineUp(n)
	m.follow = m.vp.AtBottom()
}

// ScrollDown moves the viewport toward newer entries.
func (m *Model) ScrollDown(n int) {
	m.vp.LineDown(n)
	m.follow = m.vp.AtBottom()
}

// Following reports whether new entries scroll into view.
func (m Model) Following() bool {
	return m.follow
}

func (m *Model) refresh() {
	lines := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		lines[i] = m.renderEntry(e)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.vp.GotoBottom()
	}
}

func (m Model) renderEntry(e Entry) string {
	ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
	kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(5).Render(string(e.Kind))
	msg := e.Message
	if limit := m.vp.Width - 20; limit > 3 && len(msg) > limit {
		msg = msg[:limit-3] + "..."
	}
	return ts + " " + kind + msg
}

// View renders the log as an overlay panel.
func (m Model) View() string {
	title := theme.StyleHeader.Render(" EVENT LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d entries", len(m.Entries)))

	body := m.vp.View()
	if len(m.Entries) == 0 {
		body = theme.StyleDimmed.Render("  No events recorded yet.")
	}

	return lipgloss.NewStyle().
		Width(m.vp.Width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, body, help))
}

func kindColor(k Kind) lipgloss.Color {
	switch k {
	case KindWS:
		return theme.ColorMeasured
	case KindError:
		return theme.ColorDanger
	case KindControl:
		return theme.ColorTarget
	case KindStatus:
		return theme.ColorReduce
	default:
		return theme.ColorDimmed
	}
}
