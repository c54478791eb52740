// Package tui holds the Bubble Tea views behind --tui. Views render the
// same payloads the table/json/yaml output uses.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent   = lipgloss.Color("#2DD4BF")
	faint    = lipgloss.Color("#6B7280")
	bright   = lipgloss.Color("#F9FAFB")
	toServer = lipgloss.Color("#FBBF24")
	toClient = lipgloss.Color("#34D399")
	crypto   = lipgloss.Color("#C084FC")
	scrubbed = lipgloss.Color("#F87171")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	// LabelStyle pads labels so values line up in the header box.
	LabelStyle = lipgloss.NewStyle().Foreground(faint).Width(14)
	ValueStyle = lipgloss.NewStyle().Foreground(bright)
	HelpStyle  = lipgloss.NewStyle().Foreground(faint).MarginTop(1)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(faint).
			Padding(1, 2)

	HeaderRowStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(accent)

	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(accent).
			Padding(0, 1).
			Width(18).
			Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(faint).Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Foreground(bright).Align(lipgloss.Center)

	serverStyle = lipgloss.NewStyle().Foreground(toServer)
	clientStyle = lipgloss.NewStyle().Foreground(toClient)
	cryptoStyle = lipgloss.NewStyle().Foreground(crypto).Italic(true)
)

// RecordStyle colours a listing row: crypto state markers stand apart,
// packets take the colour of the side they travel to.
func RecordStyle(kind, destination string) lipgloss.Style {
	if kind == "crypto_state" {
		return cryptoStyle
	}
	switch destination {
	case "server":
		return serverStyle
	case "client":
		return clientStyle
	default:
		return ValueStyle
	}
}
