package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/arciisine/npx-types-plugin/internal/session"
	"github.com/arciisine/npx-types-plugin/internal/tui/components"
	"github.com/arciisine/npx-types-plugin/internal/tui/styles"
)

// CheckFunc processes the script at path.
type CheckFunc func(ctx context.Context, path string) (session.Result, error)

// checkDoneMsg reports the outcome of the script at index.
type checkDoneMsg struct {
	index   int
	outcome Outcome
}

// CheckModel is the Bubble Tea model for the check command. Scripts are
// processed one at a time; finished ones are listed above the spinner.
type CheckModel struct {
	ctx      context.Context
	paths    []string
	check    CheckFunc
	spinner  *components.Spinner
	current  int
	outcomes []Outcome
	quitting bool
}

// NewCheckModel creates a model that runs check over paths.
func NewCheckModel(ctx context.Context, paths []string, check CheckFunc) *CheckModel {
	return &CheckModel{
		ctx:     ctx,
		paths:   paths,
		check:   check,
		spinner: components.NewSpinner(),
	}
}

// Init starts the spinner and the first check.
func (m *CheckModel) Init() tea.Cmd {
	if len(m.paths) == 0 {
		return tea.Quit
	}
	return tea.Batch(m.spinner.Init(), m.start(0))
}

func (m *CheckModel) start(i int) tea.Cmd {
	m.current = i
	m.spinner.SetStatusText(m.paths[i])
	m.spinner.Start()
	path := m.paths[i]
	return func() tea.Msg {
		res, err := m.check(m.ctx, path)
		return checkDoneMsg{index: i, outcome: Outcome{Path: path, Result: res, Err: err}}
	}
}

// Update handles key presses, spinner ticks and finished checks.
func (m *CheckModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case checkDoneMsg:
		m.outcomes = append(m.outcomes, msg.outcome)
		if m.quitting || msg.index+1 >= len(m.paths) {
			return m, tea.Quit
		}
		return m, m.start(msg.index + 1)

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders finished outcomes and the active spinner.
func (m *CheckModel) View() string {
	var b strings.Builder
	for _, o := range m.outcomes {
		b.WriteString(FormatOutcome(o, false))
		b.WriteString("\n")
	}
	if m.Done() {
		b.WriteString(styles.MutedTextStyle.Render(Summarize(m.outcomes).String()))
		b.WriteString("\n")
		return b.String()
	}
	if m.quitting {
		return b.String()
	}
	b.WriteString(m.spinner.View())
	b.WriteString("\n")
	b.WriteString(styles.HelpStyle.Render(fmt.Sprintf("%d/%d  q to stop", len(m.outcomes), len(m.paths))))
	b.WriteString("\n")
	return b.String()
}

// Done reports whether every script was processed.
func (m *CheckModel) Done() bool {
	return len(m.outcomes) == len(m.paths)
}

// Outcomes returns the outcomes collected so far, in path order.
func (m *CheckModel) Outcomes() []Outcome {
	return m.outcomes
}

// RunChecks runs check over paths, rendering progress to out. A terminal
// gets the interactive program; anything else gets one plain line per
// script. Processing stops early when ctx is cancelled.
func RunChecks(ctx context.Context, out io.Writer, paths []string, check CheckFunc) ([]Outcome, error) {
	if !IsTerminal(out) {
		return runPlain(ctx, out, paths, check), nil
	}

	m := NewCheckModel(ctx, paths, check)
	p := tea.NewProgram(m, tea.WithOutput(out), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return m.Outcomes(), fmt.Errorf("tui: %w", err)
	}
	return m.Outcomes(), nil
}

func runPlain(ctx context.Context, out io.Writer, paths []string, check CheckFunc) []Outcome {
	outcomes := make([]Outcome, 0, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		res, err := check(ctx, path)
		o := Outcome{Path: path, Result: res, Err: err}
		outcomes = append(outcomes, o)
		fmt.Fprintln(out, FormatOutcome(o, true))
	}
	if len(outcomes) > 0 {
		fmt.Fprintln(out, Summarize(outcomes).String())
	}
	return outcomes
}
