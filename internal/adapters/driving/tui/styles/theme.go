// Package styles provides colour themes and styling for the TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colour palette for the TUI.
type Theme struct {
	// Primary is the main accent colour.
	Primary lipgloss.Color

	// Secondary is the secondary accent colour.
	Secondary lipgloss.Color

	// Foreground is the default text colour.
	Foreground lipgloss.Color

	// Muted is for less important text.
	Muted lipgloss.Color

	// Error indicates problems.
	Error lipgloss.Color

	// Border is the border colour.
	Border lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:    lipgloss.Color("#8B5CF6"), // Violet
		Secondary:  lipgloss.Color("#22D3EE"), // Cyan
		Foreground: lipgloss.Color("#E2E8F0"), // Light slate
		Muted:      lipgloss.Color("#64748B"), // Slate
		Error:      lipgloss.Color("#FB7185"), // Rose
		Border:     lipgloss.Color("#334155"), // Border slate
	}
}

// Styles contains pre-configured lipgloss styles.
type Styles struct {
	theme *Theme

	// Title style for the header.
	Title lipgloss.Style

	// User style for the user's messages.
	User lipgloss.Style

	// Assistant style for generated answers.
	Assistant lipgloss.Style

	// Source style for citation lines.
	Source lipgloss.Style

	// Muted style for less important text.
	Muted lipgloss.Style

	// Error style for error messages.
	Error lipgloss.Style

	// InputField style for the question input.
	InputField lipgloss.Style

	// Help style for the key hints.
	Help lipgloss.Style
}

// DefaultStyles returns styles built from the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// NewStyles creates styles from a theme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		theme: theme,

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			Padding(0, 1),

		User: lipgloss.NewStyle().
			Foreground(theme.Secondary).
			Bold(true),

		Assistant: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Source: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Error: lipgloss.NewStyle().
			Foreground(theme.Error).
			Bold(true),

		InputField: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		Help: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),
	}
}

// Theme returns the theme the styles were built from.
func (s *Styles) Theme() *Theme {
	return s.theme
}
