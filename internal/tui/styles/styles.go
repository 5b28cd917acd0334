// Package styles provides Lip Gloss styles for npx-scripts output.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	Primary    = lipgloss.Color("#7C3AED") // Purple
	Secondary  = lipgloss.Color("#06B6D4") // Cyan
	Success    = lipgloss.Color("#10B981") // Green
	Warning    = lipgloss.Color("#F59E0B") // Amber
	Error      = lipgloss.Color("#EF4444") // Red
	Muted      = lipgloss.Color("#6B7280") // Gray
	MutedLight = lipgloss.Color("#9CA3AF") // Light Gray
	Foreground = lipgloss.Color("#F9FAFB") // White
)

// Icons for script states.
var (
	IconValid      = lipgloss.NewStyle().Foreground(Success).Render("✓")
	IconFailed     = lipgloss.NewStyle().Foreground(Error).Render("✗")
	IconInstalling = lipgloss.NewStyle().Foreground(Secondary).Render("→")
	IconMissing    = lipgloss.NewStyle().Foreground(Warning).Render("⊘")
	IconInvalid    = lipgloss.NewStyle().Foreground(Warning).Render("!")
	IconPending    = lipgloss.NewStyle().Foreground(Muted).Render("○")
	IconSkipped    = lipgloss.NewStyle().Foreground(Muted).Render("·")
)

// Text styles.
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(Foreground).
			Background(Primary).
			Bold(true).
			Padding(0, 1)

	// PathStyle is for script paths.
	PathStyle = lipgloss.NewStyle().
			Foreground(Foreground)

	// ModuleStyle is for package references.
	ModuleStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	MutedTextStyle = lipgloss.NewStyle().
			Foreground(Muted)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(Error)

	SuccessTextStyle = lipgloss.NewStyle().
				Foreground(Success)

	WarningTextStyle = lipgloss.NewStyle().
				Foreground(Warning)

	// HelpStyle is for key hints.
	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)
)
