package wizard

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	summaryStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	fuzzyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
