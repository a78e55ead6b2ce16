// Package help renders the key reference overlay from Markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/sound-priority/tui/internal/theme"
)

const intro = `# sound-priority

Sessions marked **target** are turned down while any **measured** session is
louder than the sensitivity threshold. **Excluded** sessions are ignored.
`

// Markdown builds the help document for the given bindings.
func Markdown(bindings []key.Binding) string {
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n## Keys\n\n| Key | Action |\n|---|---|\n")
	for _, k := range bindings {
		h := k.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	return b.String()
}

// View renders the overlay. Rendering failures fall back to the raw Markdown.
func View(bindings []key.Binding, width int) string {
	innerW := width - 8
	if innerW < 30 {
		innerW = 30
	}

	md := Markdown(bindings)
	out := md
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(innerW),
	)
	if err == nil {
		if rendered, err := r.Render(md); err == nil {
			out = strings.TrimRight(rendered, "\n")
		}
	}

	footer := theme.StyleDimmed.Render("esc:close")
	return lipgloss.NewStyle().
		Width(innerW).
		Padding(0, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, out, footer))
}
