package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sound-priority/tui/internal/client"
	"github.com/sound-priority/tui/internal/theme"
	"github.com/sound-priority/tui/internal/views/debug"
	"github.com/sound-priority/tui/internal/views/help"
	"github.com/sound-priority/tui/internal/views/sessions"
	"github.com/sound-priority/tui/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayHelp
	OverlayDebug
)

// controlResultMsg carries the outcome of a REST call.
type controlResultMsg struct {
	action  string
	ducking *client.Ducking
	err     error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	overlay Overlay

	// Sub-views.
	statusBar status.Model
	table     sessions.Model
	events    debug.Model

	ducking *client.Ducking
	notice  string

	connected bool
	animating bool
}

// New creates the root model.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		table:     sessions.New(),
		events:    debug.New(),
	}
}

// Init starts the WebSocket connection and fetches the current config.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), m.fetchConfig())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.table.Width = msg.Width
		m.events.Resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessions.FrameMsg:
		if m.table.Animate() {
			return m, sessions.Frame()
		}
		m.animating = false
		return m, nil

	case controlResultMsg:
		if msg.err != nil {
			m.notice = msg.action + " failed: " + msg.err.Error()
			m.events.Add(debug.KindError, "%s: %v", msg.action, msg.err)
			return m, nil
		}
		if msg.ducking != nil {
			m.ducking = msg.ducking
		}
		m.notice = msg.action
		m.events.Add(debug.KindControl, "%s", msg.action)
		return m, nil

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.events.Add(debug.KindWS, "connected")
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		m.events.Add(debug.KindWS, "disconnected: %v", msg.Err)
		return m, m.ws.Listen(m.ctx)

	case client.WSHelloMsg:
		m.events.Add(debug.KindWS, "hello as %s", msg.Payload.ClientID)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSSnapshotMsg:
		snap := msg.Payload.Snapshot
		m.statusBar.SetSnapshot(snap)
		m.table.SetRows(snap.Sessions)
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), m.animate())

	case client.WSStatusMsg:
		m.statusBar.SetStatus(msg.Payload)
		m.events.Add(debug.KindStatus, "%s at peak %.2f (tick %d)", msg.Payload.Status, msg.Payload.Peak, msg.Payload.Tick)
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDaemonMsg:
		m.statusBar.Suspended = msg.Payload.Suspended
		if msg.Payload.Suspended {
			m.events.Add(debug.KindStatus, "daemon suspended")
		} else {
			m.events.Add(debug.KindStatus, "daemon resumed")
		}
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSConfigMsg:
		d := msg.Payload.Ducking
		m.ducking = &d
		m.events.Add(debug.KindWS, "config: %d targets, %d excluded", len(d.Targets), len(d.Exclude))
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSErrorMsg:
		m.notice = msg.Payload.Message
		m.events.Add(debug.KindError, "%s", msg.Payload.Message)
		return m, m.ws.ReadLoop(m.ctx)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && (m.overlay == OverlayNone || msg.String() == "ctrl+c") {
		m.cancel()
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Up):
			m.events.ScrollUp(1)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.Down):
			m.events.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		m.table.Move(1)
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.table.Move(-1)
		return m, nil

	case key.Matches(msg, m.keys.Target):
		return m, m.toggle("target")

	case key.Matches(msg, m.keys.Exclude):
		return m, m.toggle("exclude")

	case key.Matches(msg, m.keys.Suspend):
		return m, m.toggleSuspend()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchConfig()

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil
	}

	return m, nil
}

func (m *Model) animate() tea.Cmd {
	if m.animating {
		return nil
	}
	m.animating = true
	return sessions.Frame()
}

func (m Model) toggle(list string) tea.Cmd {
	row, ok := m.table.SelectedRow()
	if !ok || m.http == nil {
		return nil
	}
	hc := m.http
	return func() tea.Msg {
		var (
			d   *client.Ducking
			err error
		)
		if list == "target" {
			d, err = hc.ToggleTarget(row.Name)
		} else {
			d, err = hc.ToggleExclude(row.Name)
		}
		return controlResultMsg{action: fmt.Sprintf("toggle %s %s", list, row.Name), ducking: d, err: err}
	}
}

func (m Model) toggleSuspend() tea.Cmd {
	if m.http == nil {
		return nil
	}
	hc := m.http
	if m.statusBar.Suspended {
		return func() tea.Msg {
			return controlResultMsg{action: "resume", err: hc.Resume()}
		}
	}
	return func() tea.Msg {
		return controlResultMsg{action: "suspend", err: hc.Suspend()}
	}
}

func (m Model) fetchConfig() tea.Cmd {
	if m.http == nil {
		return nil
	}
	hc := m.http
	return func() tea.Msg {
		d, err := hc.GetConfig()
		return controlResultMsg{action: "load config", ducking: d, err: err}
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if !m.connected {
		return m.renderDisconnected()
	}

	switch m.overlay {
	case OverlayHelp:
		return help.View(m.keys.Bindings(), m.width)
	case OverlayDebug:
		return m.events.View()
	}

	sections := []string{
		m.statusBar.View(),
		m.table.View(),
		"",
		m.renderConfig(),
	}
	if m.notice != "" {
		sections = append(sections, theme.StyleDimmed.Render("  "+m.notice))
	}
	sections = append(sections, theme.StyleDimmed.Render("  j/k:navigate  t:target  x:exclude  space:suspend  r:reload  d:events  ?:help  q:quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderConfig() string {
	if m.ducking == nil {
		return theme.StyleDimmed.Render("  config not loaded")
	}
	d := m.ducking
	targets := lipgloss.NewStyle().Foreground(theme.ColorTarget).Render(listOrDash(d.Targets))
	exclude := lipgloss.NewStyle().Foreground(theme.ColorDimmed).Render(listOrDash(d.Exclude))
	levels := fmt.Sprintf("sensitivity %.2f  reduce %.0f%%  restore %.0f%%  speed %.2f",
		d.Sensitivity, d.ReduceVolume*100, d.RestoreVolume*100, d.TransformSpeed)
	return lipgloss.JoinVertical(lipgloss.Left,
		"  targets: "+targets,
		"  exclude: "+exclude,
		"  "+theme.StyleDimmed.Render(levels),
	)
}

func (m Model) renderDisconnected() string {
	box := lipgloss.NewStyle().
		Padding(1, 4).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorDanger).
		Render(lipgloss.JoinVertical(lipgloss.Center,
			lipgloss.NewStyle().Foreground(theme.ColorDanger).Bold(true).Render("DISCONNECTED"),
			theme.StyleDimmed.Render("Reconnecting to the sound-priority daemon..."),
		))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
