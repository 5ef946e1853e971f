package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme/palette helpers. Colors are adaptive so the schedule stays readable on
// light and dark terminals.

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted      lipgloss.TerminalColor = ac("240", "243")
	colorAccent     lipgloss.TerminalColor = ac("27", "62")
	colorSelectedBg lipgloss.TerminalColor = ac("#e9e9e9", "#262626")
	colorSelectedFg lipgloss.TerminalColor = ac("235", "255")
	colorLocked     lipgloss.TerminalColor = ac("130", "214")
	colorSuccess    lipgloss.TerminalColor = ac("28", "78")
	colorError      lipgloss.TerminalColor = ac("160", "203")
	colorPending    lipgloss.TerminalColor = ac("244", "244")
)

var (
	styleHeader   = lipgloss.NewStyle().Bold(true)
	styleMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	styleBlock    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleLocked   = lipgloss.NewStyle().Bold(true).Foreground(colorLocked)
	styleSelected = lipgloss.NewStyle().Background(colorSelectedBg).Foreground(colorSelectedFg)
	stylePending  = lipgloss.NewStyle().Italic(true).Foreground(colorPending)
	styleNotice   = map[string]lipgloss.Style{
		"info":    lipgloss.NewStyle().Foreground(colorMuted),
		"success": lipgloss.NewStyle().Foreground(colorSuccess),
		"error":   lipgloss.NewStyle().Bold(true).Foreground(colorError),
	}
)

// applyTheme pins the background/profile for auto-detection-averse terminals.
// "auto" (or empty) leaves lipgloss' own detection in place.
func applyTheme(theme string) string {
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case "dark":
		lipgloss.SetHasDarkBackground(true)
		return "dark"
	case "light":
		lipgloss.SetHasDarkBackground(false)
		return "light"
	case "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return "ascii"
	default:
		return "auto"
	}
}

// markdownStyle picks the glamour standard style matching the background.
func markdownStyle() string {
	if lipgloss.ColorProfile() == termenv.Ascii {
		return "notty"
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
