// Package tui renders check progress and script states for the terminal.
//
// On a terminal the check command runs a Bubble Tea program with a spinner
// on the script being processed; otherwise every outcome is printed as a
// plain line, suitable for logs and pipes.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
	"github.com/arciisine/npx-types-plugin/internal/session"
	"github.com/arciisine/npx-types-plugin/internal/tui/styles"
)

// Outcome is the result of checking one script.
type Outcome struct {
	Path   string
	Result session.Result
	Err    error
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StateIcon returns the styled icon for s.
func StateIcon(s session.State) string {
	switch s {
	case session.StateValid:
		return styles.IconValid
	case session.StateFailed:
		return styles.IconFailed
	case session.StateInstalling:
		return styles.IconInstalling
	case session.StateMissingTypings:
		return styles.IconMissing
	case session.StateInvalidTypings:
		return styles.IconInvalid
	case session.StateNoAnnotation:
		return styles.IconPending
	default:
		return styles.IconSkipped
	}
}

// FormatOutcome renders o as one line. Plain output carries the state name
// instead of an icon and no colors.
func FormatOutcome(o Outcome, plain bool) string {
	state := o.Result.State
	if o.Err != nil {
		state = session.StateFailed
	}
	module := o.Result.Ref.Full()

	var detail string
	switch {
	case o.Err != nil:
		detail = npxerrors.Message(o.Err)
	case state == session.StateValid:
		detail = o.Result.Path
	}
	return formatLine(o.Path, state, module, detail, plain)
}

// FormatStatus renders the derived status of the script at path.
func FormatStatus(path string, st session.Status, plain bool) string {
	detail := st.Path
	if st.Message != "" {
		detail = st.Message
	}
	return formatLine(path, st.State, st.Module, detail, plain)
}

func formatLine(path string, state session.State, module, detail string, plain bool) string {
	if plain {
		parts := []string{fmt.Sprintf("%-15s", state), path}
		if module != "" {
			parts = append(parts, module)
		}
		if detail != "" {
			parts = append(parts, detail)
		}
		return strings.Join(parts, "  ")
	}

	line := StateIcon(state) + " " + styles.PathStyle.Render(path)
	if module != "" {
		line += " " + styles.ModuleStyle.Render(module)
	}
	if detail != "" {
		style := styles.MutedTextStyle
		if state == session.StateFailed {
			style = styles.ErrorTextStyle
		}
		line += " " + style.Render(detail)
	}
	return line
}

// Summary counts outcomes by result.
type Summary struct {
	Total   int
	Valid   int
	Failed  int
	Skipped int
	Changed int
}

// Summarize tallies outcomes.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Total++
		switch {
		case o.Err != nil || o.Result.State == session.StateFailed:
			s.Failed++
		case o.Result.State == session.StateValid:
			s.Valid++
		default:
			s.Skipped++
		}
		if o.Result.Changed {
			s.Changed++
		}
	}
	return s
}

// String renders the summary line.
func (s Summary) String() string {
	return fmt.Sprintf("%d scripts: %d valid, %d failed, %d without directive, %d updated",
		s.Total, s.Valid, s.Failed, s.Skipped, s.Changed)
}
