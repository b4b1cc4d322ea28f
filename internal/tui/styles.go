package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/witransfer/witransfer/internal/ui"
	"github.com/witransfer/witransfer/internal/version"
)

// AppName is shown in the container header
const AppName = "WITRANSFER"

// Layout constants for responsive terminal width
const (
	MinTerminalWidth = 60
	DefaultWidth     = 72
	DefaultHeight    = 24
)

var (
	// TitleStyle is for the list title
	TitleStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor).
			Bold(true)

	// SubtitleStyle is for secondary lines
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Italic(true)

	// SpinnerStyle colors the waiting spinner
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor)

	// SelectedPeerStyle highlights the cursor row
	SelectedPeerStyle = lipgloss.NewStyle().
				Foreground(ui.SuccessColor).
				Bold(true)

	// PeerStyle is for unselected rows
	PeerStyle = lipgloss.NewStyle().
			Foreground(ui.TextColor)

	// DetailStyle is for the second row of each peer
	DetailStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor)

	// StatusStyle is for the counters line
	StatusStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor)

	// WarningStyle flags a degraded session
	WarningStyle = lipgloss.NewStyle().
			Foreground(ui.WarningColor).
			Bold(true)
)

// renderContainer wraps content with a header and a footer inside a
// full-terminal border
func renderContainer(content, footer string, width, height int) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	header := lipgloss.NewStyle().
		Foreground(ui.TextColor).
		Bold(true).
		Render(AppName + " " + version.Version)

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4). // Leave room for outer border
		Padding(0, 1)

	footerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1)

	inner := lipgloss.JoinVertical(
		lipgloss.Left,
		headerStyle.Render(header),
		lipgloss.NewStyle().Width(width-4).Render(content),
		footerStyle.Render(footer),
	)

	border := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(ui.PrimaryColor).
		Width(width - 2)
	if height > 2 {
		border = border.Height(height - 2).AlignVertical(lipgloss.Top)
	}

	return border.Render(inner)
}
