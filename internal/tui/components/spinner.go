// Package components holds reusable Bubble Tea components.
package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/arciisine/npx-types-plugin/internal/tui/styles"
)

// Spinner displays an animated spinner next to a status line and the time
// spent on the current item.
type Spinner struct {
	spinner    spinner.Model
	statusText string
	startTime  time.Time
	showTime   bool
}

// NewSpinner creates a Spinner with the default style.
func NewSpinner() *Spinner {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Secondary)
	return &Spinner{
		spinner:  s,
		showTime: true,
	}
}

// SetStatusText sets the text shown next to the spinner.
func (s *Spinner) SetStatusText(text string) {
	s.statusText = text
}

// StatusText returns the current status text.
func (s *Spinner) StatusText() string { return s.statusText }

// SetShowTime controls whether elapsed time is shown.
func (s *Spinner) SetShowTime(show bool) {
	s.showTime = show
}

// Start resets the elapsed time.
func (s *Spinner) Start() {
	s.startTime = time.Now()
}

// Elapsed returns the time since Start.
func (s *Spinner) Elapsed() time.Duration {
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Init returns the first tick.
func (s *Spinner) Init() tea.Cmd {
	return s.spinner.Tick
}

// Update handles spinner tick messages.
func (s *Spinner) Update(msg tea.Msg) (*Spinner, tea.Cmd) {
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(msg)
	return s, cmd
}

// View renders the spinner line.
func (s *Spinner) View() string {
	line := fmt.Sprintf("%s %s", s.spinner.View(), styles.PathStyle.Render(s.statusText))
	if s.showTime && !s.startTime.IsZero() {
		line += " " + styles.MutedTextStyle.Render(fmt.Sprintf("(%s)", FormatDuration(s.Elapsed())))
	}
	return line
}

// FormatDuration formats d at second granularity.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
