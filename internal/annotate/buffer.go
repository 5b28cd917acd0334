// Package annotate keeps the annotation line of a script in sync with the
// install state of its declared package. Edits are minimal: a line whose
// content is already equivalent is never rewritten, so tools watching the
// file see no change.
package annotate

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/arciisine/npx-types-plugin/internal/directive"
	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
)

// Op is the kind of a line edit.
type Op int

const (
	// OpReplace overwrites the line at Line.
	OpReplace Op = iota
	// OpInsert inserts a new line before Line. Line may equal the line count.
	OpInsert
	// OpDelete removes the line at Line.
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpReplace:
		return "replace"
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Edit is a single line operation. Line indexes are zero based and refer to
// the buffer as left by the preceding edits of the same Apply call.
type Edit struct {
	Op   Op
	Line int
	Text string
}

// Replace returns an edit overwriting line.
func Replace(line int, text string) Edit { return Edit{Op: OpReplace, Line: line, Text: text} }

// Insert returns an edit inserting text before line.
func Insert(line int, text string) Edit { return Edit{Op: OpInsert, Line: line, Text: text} }

// Delete returns an edit removing line.
func Delete(line int) Edit { return Edit{Op: OpDelete, Line: line} }

// Buffer is the text surface the synchronizer edits.
type Buffer interface {
	// Lines returns the current content, one element per line.
	Lines() []string
	// Apply performs all edits or none. Applying no edits, or edits that
	// leave the content unchanged, must not count as a mutation.
	Apply(edits ...Edit) error
}

// applyEdits returns lines with edits applied in order, leaving the input
// untouched.
func applyEdits(lines []string, edits []Edit) ([]string, error) {
	out := slices.Clone(lines)
	for i, e := range edits {
		switch e.Op {
		case OpReplace:
			if e.Line < 0 || e.Line >= len(out) {
				return nil, fmt.Errorf("edit %d: replace line %d out of range [0,%d)", i, e.Line, len(out))
			}
			out[e.Line] = e.Text
		case OpInsert:
			if e.Line < 0 || e.Line > len(out) {
				return nil, fmt.Errorf("edit %d: insert line %d out of range [0,%d]", i, e.Line, len(out))
			}
			out = slices.Insert(out, e.Line, e.Text)
		case OpDelete:
			if e.Line < 0 || e.Line >= len(out) {
				return nil, fmt.Errorf("edit %d: delete line %d out of range [0,%d)", i, e.Line, len(out))
			}
			out = slices.Delete(out, e.Line, e.Line+1)
		default:
			return nil, fmt.Errorf("edit %d: unknown op %v", i, e.Op)
		}
	}
	return out, nil
}

// MemBuffer is an in-memory Buffer that counts content changes.
type MemBuffer struct {
	mu        sync.Mutex
	lines     []string
	mutations int
}

// NewMemBuffer creates a buffer holding text.
func NewMemBuffer(text string) *MemBuffer {
	return &MemBuffer{lines: directive.SplitLines(text)}
}

// Lines implements Buffer.
func (b *MemBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.lines)
}

// Apply implements Buffer.
func (b *MemBuffer) Apply(edits ...Edit) error {
	if len(edits) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := applyEdits(b.lines, edits)
	if err != nil {
		return err
	}
	if slices.Equal(next, b.lines) {
		return nil
	}
	b.lines = next
	b.mutations++
	return nil
}

// Mutations returns how many Apply calls changed the content.
func (b *MemBuffer) Mutations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mutations
}

// Text returns the content joined with newlines, with a trailing newline
// when the buffer is not empty.
func (b *MemBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return ""
	}
	return strings.Join(b.lines, "\n") + "\n"
}

// FileBuffer is a Buffer backed by a file on disk. Edits stay in memory
// until Save.
type FileBuffer struct {
	fs   afero.Fs
	path string

	mu       sync.Mutex
	lines    []string
	eol      string
	trailing bool
	dirty    bool
}

// OpenFile loads path into a FileBuffer.
func OpenFile(fs afero.Fs, path string) (*FileBuffer, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, npxerrors.IOFailure("read", path, err)
	}
	text := string(data)
	b := &FileBuffer{
		fs:       fs,
		path:     path,
		lines:    directive.SplitLines(text),
		eol:      "\n",
		trailing: text == "" || strings.HasSuffix(text, "\n"),
	}
	if strings.Contains(text, "\r\n") {
		b.eol = "\r\n"
	}
	return b, nil
}

// Path returns the backing file path.
func (b *FileBuffer) Path() string { return b.path }

// Lines implements Buffer.
func (b *FileBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.lines)
}

// Apply implements Buffer.
func (b *FileBuffer) Apply(edits ...Edit) error {
	if len(edits) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := applyEdits(b.lines, edits)
	if err != nil {
		return err
	}
	if slices.Equal(next, b.lines) {
		return nil
	}
	b.lines = next
	b.dirty = true
	return nil
}

// Dirty reports whether the buffer has unsaved changes.
func (b *FileBuffer) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// Save writes the buffer back when it has changes, keeping the file mode
// and line endings. It reports whether the file was written.
func (b *FileBuffer) Save() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dirty {
		return false, nil
	}

	content := strings.Join(b.lines, b.eol)
	if b.trailing && len(b.lines) > 0 {
		content += b.eol
	}
	if err := writePreservingMode(b.fs, b.path, []byte(content)); err != nil {
		return false, err
	}
	b.dirty = false
	return true, nil
}

func writePreservingMode(fs afero.Fs, path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := fs.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := afero.WriteFile(fs, path, data, mode); err != nil {
		return npxerrors.IOFailure("write", path, err)
	}
	return nil
}
