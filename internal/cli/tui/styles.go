package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/RevCBH/loadnode/internal/container"
)

// Styles contains all lipgloss styles for the watch view
type Styles struct {
	Title lipgloss.Style
	RunID lipgloss.Style
	Timer lipgloss.Style

	ContainerID lipgloss.Style
	Active      lipgloss.Style
	Complete    lipgloss.Style
	Error       lipgloss.Style
	Dim         lipgloss.Style

	Footer    lipgloss.Style
	FooterKey lipgloss.Style

	LogTitle lipgloss.Style
	LogLine  lipgloss.Style
}

// DefaultStyles returns the default watch styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		RunID: lipgloss.NewStyle().Bold(true),
		Timer: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		ContainerID: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		Active:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Complete:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Dim:         lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		Footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1),
		FooterKey: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),

		LogTitle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true),
		LogLine:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// StateStyle picks the style for a container state.
func (s Styles) StateStyle(state container.State) lipgloss.Style {
	switch state {
	case container.StateRunning:
		return s.Active
	case container.StateExited:
		return s.Complete
	case container.StateDead:
		return s.Error
	default:
		return s.Dim
	}
}

// Icons used in the watch view
const (
	IconActive  = "●"
	IconExited  = "✓"
	IconWaiting = "○"
)
