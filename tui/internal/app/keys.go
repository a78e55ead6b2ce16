package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Target  key.Binding
	Exclude key.Binding
	Suspend key.Binding
	Refresh key.Binding
	Help    key.Binding
	Debug   key.Binding
	Escape  key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "previous session"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next session"),
		),
		Target: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle target"),
		),
		Exclude: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "toggle exclude"),
		),
		Suspend: key.NewBinding(
			key.WithKeys(" ", "s"),
			key.WithHelp("space/s", "suspend or resume"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload config"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Bindings lists every binding in display order.
func (k KeyMap) Bindings() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Target, k.Exclude, k.Suspend, k.Refresh, k.Help, k.Debug, k.Escape, k.Quit}
}
