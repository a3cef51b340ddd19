package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	itemStyle    = lipgloss.NewStyle().PaddingLeft(2)
	cursorStyle  = lipgloss.NewStyle().PaddingLeft(2).Bold(true).Foreground(lipgloss.Color("205"))
	checkedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
)

const ruleWidthHint = 24
