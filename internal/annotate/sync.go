package annotate

import (
	"strings"

	"github.com/spf13/afero"

	"github.com/arciisine/npx-types-plugin/internal/directive"
	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
)

// DefaultLine is where a new annotation goes: right after the shebang.
const DefaultLine = 1

// Synchronizer writes and removes annotation lines.
type Synchronizer struct {
	// DefaultLine is the zero-based line a new annotation is inserted at.
	DefaultLine int
}

// NewSynchronizer creates a synchronizer inserting at line. A negative line
// falls back to DefaultLine.
func NewSynchronizer(line int) *Synchronizer {
	if line < 0 {
		line = DefaultLine
	}
	return &Synchronizer{DefaultLine: line}
}

// Normalize reduces a line to the form used for equality checks: lower
// case, whitespace runs collapsed to one space, trimmed.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Write makes a the buffer's annotation. An existing annotation line that
// normalizes to the same text is left alone; a different one is replaced;
// otherwise the line is inserted at DefaultLine, padding with blank lines
// when the buffer is shorter. A found annotation also gets a ts-check line
// right above it unless the buffer already has one. All edits are applied
// at once. It reports whether the buffer changed.
func (s *Synchronizer) Write(buf Buffer, a directive.Annotation) (bool, error) {
	line := a.String()
	lines := buf.Lines()
	tsCheck := a.Kind == directive.KindFound && !directive.HasTSCheck(lines)

	var edits []Edit
	idx, _, ok := directive.FindAnnotation(lines)
	switch {
	case ok && Normalize(lines[idx]) == Normalize(line):
		// keep
	case ok:
		edits = append(edits, Replace(idx, line))
	default:
		idx = s.DefaultLine
		for n := len(lines); n < idx; n++ {
			edits = append(edits, Insert(n, ""))
		}
		edits = append(edits, Insert(idx, line))
	}
	if tsCheck {
		edits = append(edits, Insert(idx, directive.TSCheck))
	}
	if len(edits) == 0 {
		return false, nil
	}
	return true, buf.Apply(edits...)
}

// Clear deletes the first annotation line, and the ts-check line directly
// above it. It reports whether an annotation existed.
func (s *Synchronizer) Clear(buf Buffer) (bool, error) {
	lines := buf.Lines()
	idx, _, ok := directive.FindAnnotation(lines)
	if !ok {
		return false, nil
	}
	edits := []Edit{Delete(idx)}
	if idx > 0 && directive.IsTSCheckLine(lines[idx-1]) {
		edits = append(edits, Delete(idx-1))
	}
	return true, buf.Apply(edits...)
}

// RemoveAll deletes every annotation and ts-check line in one atomic edit
// and returns how many were removed.
func (s *Synchronizer) RemoveAll(buf Buffer) (int, error) {
	lines := buf.Lines()
	var edits []Edit
	for i := len(lines) - 1; i >= 0; i-- {
		if isToolingLine(lines[i]) {
			edits = append(edits, Delete(i))
		}
	}
	if len(edits) == 0 {
		return 0, nil
	}
	if err := buf.Apply(edits...); err != nil {
		return 0, err
	}
	return len(edits), nil
}

func isToolingLine(line string) bool {
	return directive.IsAnnotationLine(line) || directive.IsTSCheckLine(line)
}

// RemoveAllFromFile strips every annotation and ts-check line from a file that is not
// open in any buffer. The file is rewritten only when something was
// removed, keeping its mode and line endings.
func RemoveAllFromFile(fs afero.Fs, path string) (int, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, npxerrors.IOFailure("read", path, err)
	}

	parts := strings.Split(string(data), "\n")
	kept := parts[:0]
	removed := 0
	for _, p := range parts {
		if isToolingLine(p) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := writePreservingMode(fs, path, []byte(strings.Join(kept, "\n"))); err != nil {
		return 0, err
	}
	return removed, nil
}
