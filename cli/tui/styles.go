// Package tui renders the interactive --tui views of the es2json read-only
// commands with Bubble Tea.
//
// Views are opt-in and read-only; they consume the same reader payloads the
// json, table and yaml renderers print.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleColor = lipgloss.Color("#7C3AED")
	goodColor  = lipgloss.Color("#10B981")
	warnColor  = lipgloss.Color("#F59E0B")
	badColor   = lipgloss.Color("#EF4444")
	mutedColor = lipgloss.Color("#6B7280")
	infoColor  = lipgloss.Color("#3B82F6")
	plainColor = lipgloss.Color("#FFFFFF")
)

// outcomeColors maps a run outcome to its display color.
// Outcomes not listed render plain.
var outcomeColors = map[string]lipgloss.Color{
	"success":         goodColor,
	"canceled":        warnColor,
	"config_error":    badColor,
	"index_not_found": badColor,
	"store_failure":   badColor,
	"sink_failure":    badColor,
}

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(titleColor).MarginBottom(1)
	LabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	ValueStyle = lipgloss.NewStyle().Foreground(plainColor)
	HelpStyle  = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	// MissingIDStyle marks identifiers the store did not return.
	MissingIDStyle = lipgloss.NewStyle().Foreground(warnColor)

	// BoxStyle frames the run details.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// CounterBoxStyle frames one counter; the border color is set per counter.
	CounterBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	CounterLabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Align(lipgloss.Center)
	CounterValueStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
)

// StateStyle returns the style for a run outcome.
func StateStyle(outcome string) lipgloss.Style {
	if c, ok := outcomeColors[outcome]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return ValueStyle
}
