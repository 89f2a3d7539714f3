package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/es2json/cli/reader"
)

// maxMissingShown bounds the missing ids listed in the view.
const maxMissingShown = 10

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_latest":
		content = m.renderLatest()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderLatest() string {
	data, ok := m.data.(*reader.ReportSummary)
	if !ok {
		return "Invalid data type for stats_latest"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Latest Harvest"))
	b.WriteString("\n\n")

	boxes := []string{
		counterBox("Emitted", data.Emitted, infoColor),
		counterBox("Found", data.Found, goodColor),
		counterBox("Missing", data.MissingCount, warnColor),
		counterBox("Remaining", data.Remaining, badColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	var details strings.Builder
	writeField(&details, "Run ID:", ValueStyle.Render(data.RunID))
	writeField(&details, "Index:", ValueStyle.Render(data.Index))
	writeField(&details, "Day:", ValueStyle.Render(data.Day))
	writeField(&details, "Mode:", ValueStyle.Render(data.Mode))
	writeField(&details, "Outcome:", StateStyle(data.Outcome).Render(data.Outcome))
	if data.Message != "" {
		writeField(&details, "Message:", ValueStyle.Render(data.Message))
	}
	writeField(&details, "Exit Code:", ValueStyle.Render(fmt.Sprintf("%d", data.ExitCode)))
	writeField(&details, "Duration:", ValueStyle.Render((time.Duration(data.DurationMs) * time.Millisecond).String()))
	if data.CompletedAt != "" {
		writeField(&details, "Completed:", ValueStyle.Render(data.CompletedAt))
	}
	if len(data.StoreCalls) > 0 {
		writeField(&details, "Store Calls:", ValueStyle.Render(data.StoreCallsString()))
	}
	b.WriteString(BoxStyle.Render(strings.TrimSuffix(details.String(), "\n")))

	if len(data.Missing) > 0 {
		b.WriteString("\n\n")
		b.WriteString(LabelStyle.Render("Missing IDs:"))
		b.WriteString("\n")
		for i, id := range data.Missing {
			if i == maxMissingShown {
				b.WriteString(HelpStyle.Render(fmt.Sprintf("  ... and %d more", data.MissingCount-int64(maxMissingShown))))
				break
			}
			b.WriteString("  " + MissingIDStyle.Render(id) + "\n")
		}
	}

	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(label), value))
}

func counterBox(label string, value int64, color lipgloss.Color) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		CounterValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value)),
		CounterLabelStyle.Render(label),
	)
	return CounterBoxStyle.BorderForeground(color).Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
