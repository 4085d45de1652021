package reporter

import "github.com/charmbracelet/lipgloss"

var (
	colorCyan = lipgloss.Color("51")
	colorDim  = lipgloss.Color("240")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan)

var taskStyle = lipgloss.NewStyle().
	Bold(true)

var dimStyle = lipgloss.NewStyle().
	Foreground(colorDim)
