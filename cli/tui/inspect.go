package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/psforever/GameLogger/cli/reader"
)

// InspectModel shows capture metadata above a scrollable record listing.
type InspectModel struct {
	data     *reader.InspectCaptureResponse
	offset   int
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(data *reader.InspectCaptureResponse) InspectModel {
	return InspectModel{data: data, height: 24}
}

func (m InspectModel) Init() tea.Cmd { return nil }

func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.offset = m.clamp(m.offset)
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.offset = m.clamp(m.offset - 1)
		case key.Matches(msg, keys.Down):
			m.offset = m.clamp(m.offset + 1)
		case key.Matches(msg, keys.PageUp):
			m.offset = m.clamp(m.offset - m.pageSize())
		case key.Matches(msg, keys.PageDown):
			m.offset = m.clamp(m.offset + m.pageSize())
		}
	}
	return m, nil
}

// pageSize is the number of listing rows that fit under the metadata box.
func (m InspectModel) pageSize() int {
	return max(m.height-18, 3)
}

func (m InspectModel) clamp(offset int) int {
	if m.data == nil {
		return 0
	}
	return max(0, min(offset, len(m.data.Listing)-m.pageSize()))
}

func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "No capture loaded"
	}

	content := m.renderMetadata()
	if len(m.data.Listing) > 0 {
		content += "\n" + m.renderListing()
	}
	help := HelpStyle.Render("↑/↓ scroll • pgup/pgdn page • q quit")
	return content + "\n" + help
}

func (m InspectModel) renderMetadata() string {
	d := m.data
	var b strings.Builder
	b.WriteString(TitleStyle.Render(d.Name))
	b.WriteString("\n")

	end := "-"
	if d.EndTime != nil {
		end = d.EndTime.Format("2006-01-02 15:04:05")
	}
	rows := [][2]string{
		{"GUID", d.GUID},
		{"Path", d.Path},
		{"Revision", fmt.Sprintf("%d", d.Revision)},
		{"Records", fmt.Sprintf("%d", d.Records)},
		{"Started", d.StartTime.Format("2006-01-02 15:04:05")},
		{"Ended", end},
		{"Duration", d.Duration},
		{"Size", d.SizeHuman},
	}
	if d.Description != "" {
		rows = append(rows, [2]string{"Description", d.Description})
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1]))
	}
	for _, w := range d.Warnings {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Warning:"), serverStyle.Render(w))
	}
	return BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m InspectModel) renderListing() string {
	listing := m.data.Listing
	end := min(m.offset+m.pageSize(), len(listing))

	var b strings.Builder
	b.WriteString(HeaderRowStyle.Render(fmt.Sprintf("%7s  %12s  %-12s  %-6s  %-7s  %s",
		"#", "timestamp", "kind", "type", "to", "opcode")))
	b.WriteString("\n")
	for _, r := range listing[m.offset:end] {
		line := fmt.Sprintf("%7d  %12d  %-12s  %-6s  %-7s  %s",
			r.Index, r.Timestamp, r.Kind, r.Type, r.Destination, r.Opcode)
		b.WriteString(RecordStyle(r.Kind, r.Destination).Render(line))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s", HelpStyle.Render(fmt.Sprintf("rows %d-%d of %d", m.offset+1, end, len(listing))))
	return b.String()
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(data any) error {
	resp, ok := data.(*reader.InspectCaptureResponse)
	if !ok {
		return fmt.Errorf("inspect view needs *reader.InspectCaptureResponse, got %T", data)
	}
	_, err := tea.NewProgram(NewInspectModel(resp), tea.WithAltScreen()).Run()
	return err
}

// RenderInspectStatic renders the inspect view once, without a terminal
// program.
func RenderInspectStatic(data *reader.InspectCaptureResponse) string {
	m := NewInspectModel(data)
	m.width = 80
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
