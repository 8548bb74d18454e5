// Package output renders command results as tables, JSON or YAML and styles
// status lines for the terminal
package output

import (
	"github.com/charmbracelet/lipgloss"

	"stackctl/host/link"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	likelyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

// EventLine renders a connection event as a one-line status message
func EventLine(ev link.Event) string {
	if ev.IsError() {
		return errorStyle.Render("meta") + " " + ev.String()
	}
	return successStyle.Render("meta") + " " + ev.String()
}

// Error renders an error message
func Error(msg string) string {
	return errorStyle.Render("error:") + " " + msg
}

// Dim renders secondary text
func Dim(s string) string {
	return dimStyle.Render(s)
}

// Likely highlights the port that probably is the rig
func Likely(s string) string {
	return likelyStyle.Render(s)
}
