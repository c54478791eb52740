package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/psforever/GameLogger/cli/reader"
)

// StatsModel shows record counts for a capture.
type StatsModel struct {
	data     *reader.CaptureStats
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(data *reader.CaptureStats) StatsModel {
	return StatsModel{data: data}
}

func (m StatsModel) Init() tea.Cmd { return nil }

func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "No capture loaded"
	}
	d := m.data

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Capture Statistics: " + d.Name))
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Records", d.Total, accent),
		renderStatBox("Login", d.Login, bright),
		renderStatBox("Game", d.Game, bright),
		renderStatBox("Crypto", d.CryptoStates, crypto),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("To server", d.ToServer, toServer),
		renderStatBox("To client", d.ToClient, toClient),
		renderStatBox("Scrubbed", d.Scrubbed, scrubbed),
	))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Payload:"), ValueStyle.Render(reader.FormatBytes(d.PayloadBytes)))

	if len(d.TopOpcodes) > 0 {
		b.WriteString("\n")
		b.WriteString(HeaderRowStyle.Render("Top opcodes"))
		b.WriteString("\n")
		top := d.TopOpcodes[0].Count
		for _, oc := range d.TopOpcodes {
			fmt.Fprintf(&b, "%-24s %7d %s\n", oc.Opcode, oc.Count, bar(oc.Count, top, 30))
		}
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + help
}

// bar draws n relative to top as up to width block characters.
func bar(n, top, width int) string {
	if top <= 0 {
		return ""
	}
	return clientStyle.Render(strings.Repeat("█", n*width/top))
}

func renderStatBox(label string, value int, color lipgloss.Color) string {
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return StatBoxStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(data any) error {
	st, ok := data.(*reader.CaptureStats)
	if !ok {
		return fmt.Errorf("stats view needs *reader.CaptureStats, got %T", data)
	}
	_, err := tea.NewProgram(NewStatsModel(st), tea.WithAltScreen()).Run()
	return err
}

// RenderStatsStatic renders the stats view once, without a terminal
// program.
func RenderStatsStatic(data *reader.CaptureStats) string {
	return lipgloss.NewStyle().Padding(1, 2).Render(NewStatsModel(data).View())
}
