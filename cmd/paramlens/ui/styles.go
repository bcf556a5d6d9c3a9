// Package ui provides the interactive fix screen and the shared terminal
// styling for paramlens.
package ui

import "github.com/charmbracelet/lipgloss"

// Semantic colors, shared by the light and dark variants.
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#60a5fa"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#6b7280"}
	colorError   = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#4ade80"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#a16207", Dark: "#facc15"}
)

// Styles holds the rendered components' lipgloss styles.
type Styles struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Selected lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Notice   lipgloss.Style
	Border   lipgloss.Style
}

// DefaultStyles returns the paramlens styling.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginBottom(1),
		Header:   lipgloss.NewStyle().Bold(true),
		Body:     lipgloss.NewStyle(),
		Muted:    lipgloss.NewStyle().Foreground(colorMuted),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Error:    lipgloss.NewStyle().Foreground(colorError),
		Success:  lipgloss.NewStyle().Foreground(colorSuccess),
		Notice:   lipgloss.NewStyle().Foreground(colorWarning),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1),
	}
}
