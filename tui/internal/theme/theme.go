// Package theme provides the Lip Gloss color palette and reusable styles
// for the sound-priority TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Ducking status colors.
var (
	ColorRestore = lipgloss.Color("#22c55e")
	ColorReduce  = lipgloss.Color("#d97706")
	ColorPaused  = lipgloss.Color("#7c3aed")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// Session role colors.
var (
	ColorTarget   = lipgloss.Color("#3b82f6")
	ColorExcluded = lipgloss.Color("#374151")
	ColorMeasured = lipgloss.Color("#06b6d4")
)

// Meter thresholds.
var (
	ColorMeterLow  = lipgloss.Color("#22c55e") // <50%
	ColorMeterMid  = lipgloss.Color("#d97706") // 50-80%
	ColorMeterHigh = lipgloss.Color("#dc2626") // >80%
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for a ducking status string.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "restore":
		return ColorRestore
	case "reduce":
		return ColorReduce
	default:
		return ColorDefault
	}
}

// RoleColor returns the color for a session role.
func RoleColor(role string) lipgloss.Color {
	switch role {
	case "target":
		return ColorTarget
	case "excluded":
		return ColorExcluded
	case "measured":
		return ColorMeasured
	default:
		return ColorDefault
	}
}

// RoleGlyph returns a short marker for a session role.
func RoleGlyph(role string) string {
	switch role {
	case "target":
		return "▼"
	case "excluded":
		return "✗"
	case "measured":
		return "●"
	default:
		return "·"
	}
}

// HealthColor returns the color for a daemon health string.
func HealthColor(health string) lipgloss.Color {
	switch health {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// MeterColor returns the color for a level in [0, 1].
func MeterColor(level float64) lipgloss.Color {
	switch {
	case level > 0.8:
		return ColorMeterHigh
	case level > 0.5:
		return ColorMeterMid
	default:
		return ColorMeterLow
	}
}

// Reusable styles.
var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)
)
