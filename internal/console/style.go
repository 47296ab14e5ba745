package console

import "github.com/charmbracelet/lipgloss"

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// Error renders s as an error banner.
func Error(s string) string { return errorStyle.Render(s) }

// Warn renders s as a warning.
func Warn(s string) string { return warnStyle.Render(s) }

// Header renders s as a heading.
func Header(s string) string { return headerStyle.Render(s) }
