package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary   = lipgloss.Color("34")
	Secondary = lipgloss.Color("86")
	Subtle    = lipgloss.Color("241")
	Success   = lipgloss.Color("46")
	Warning   = lipgloss.Color("214")
	Error     = lipgloss.Color("196")

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(Primary).
			Padding(0, 2).
			Align(lipgloss.Center)

	SectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Subtle).
			Padding(0, 2).
			MarginBottom(1)

	SectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				MarginBottom(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			Width(12)

	ValueStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			Italic(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			MarginTop(1)

	LoadingStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Padding(2, 4)
)

// RenderStatus returns a styled status indicator.
func RenderStatus(ok bool, okText, failText string) string {
	if ok {
		return SuccessStyle.Render("✓ " + okText)
	}
	return ErrorStyle.Render("✗ " + failText)
}

// RenderBar renders value as a bar of width cells relative to total.
func RenderBar(value, total, width int) string {
	if total <= 0 {
		total = 1
	}

	filled := min(int(float64(value)/float64(total)*float64(width)), width)
	bar := strings.Repeat("█", max(filled, 0)) + strings.Repeat("░", width-max(filled, 0))

	return lipgloss.NewStyle().Foreground(Secondary).Render(bar)
}
