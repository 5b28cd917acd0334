package directive

import (
	"fmt"
	"regexp"
	"strings"
)

// Marker is the token that tags the annotation line. The lib attribute is
// never a real TypeScript lib name, so ordinary sources do not contain it.
const Marker = `lib="@npx-scripts"`

const (
	installingText = "installing ..."
	failedPrefix   = "failed:"
)

// TSCheck turns on type checking of a plain JavaScript file. It is written
// directly above a found annotation so the recorded typings are used.
const TSCheck = "/// @ts-check"

var tsCheckPattern = regexp.MustCompile(`^///\s*@ts-check\s*$`)

var annotationPattern = regexp.MustCompile(
	`^///\s*<reference\s+(?:types\s*=\s*"([^"\n]+)"\s+)?lib\s*=\s*"@npx-scripts"\s*/>\s*(.*)$`,
)

// Kind is the state encoded by an annotation line.
type Kind int

const (
	// KindUnknown is a marker line whose payload is not recognized.
	KindUnknown Kind = iota
	// KindFound records a resolved install path.
	KindFound
	// KindInstalling is the placeholder written while an install runs.
	KindInstalling
	// KindFailed records a failed install and its message.
	KindFailed
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindInstalling:
		return "installing"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Annotation is the decoded content of the annotation line.
type Annotation struct {
	Kind    Kind
	Path    string
	Message string
}

// Found returns an annotation recording an install location.
func Found(path string) Annotation {
	return Annotation{Kind: KindFound, Path: path}
}

// Installing returns the in-progress placeholder annotation.
func Installing() Annotation {
	return Annotation{Kind: KindInstalling}
}

// Failed returns an annotation recording a failure message. The message is
// flattened to a single line.
func Failed(message string) Annotation {
	return Annotation{Kind: KindFailed, Message: flatten(message)}
}

// String renders the annotation as a single physical line.
func (a Annotation) String() string {
	switch a.Kind {
	case KindFound:
		return fmt.Sprintf(`/// <reference types="%s" %s />`, a.Path, Marker)
	case KindInstalling:
		return fmt.Sprintf(`/// <reference %s /> %s`, Marker, installingText)
	case KindFailed:
		return fmt.Sprintf(`/// <reference %s /> %s %s`, Marker, failedPrefix, flatten(a.Message))
	default:
		return fmt.Sprintf(`/// <reference %s />`, Marker)
	}
}

// IsAnnotationLine reports whether line carries the marker.
func IsAnnotationLine(line string) bool {
	return annotationPattern.MatchString(strings.TrimRight(line, "\r"))
}

// IsTSCheckLine reports whether line is the triple-slash ts-check line.
func IsTSCheckLine(line string) bool {
	return tsCheckPattern.MatchString(strings.TrimRight(line, "\r"))
}

// HasTSCheck reports whether any line is a ts-check line.
func HasTSCheck(lines []string) bool {
	for _, line := range lines {
		if IsTSCheckLine(line) {
			return true
		}
	}
	return false
}

// ParseAnnotation decodes a single line. It reports false when the line is
// not an annotation line.
func ParseAnnotation(line string) (Annotation, bool) {
	m := annotationPattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return Annotation{}, false
	}
	if m[1] != "" {
		return Found(m[1]), true
	}
	rest := strings.TrimSpace(m[2])
	switch {
	case strings.HasPrefix(strings.ToLower(rest), "installing"):
		return Installing(), true
	case strings.HasPrefix(strings.ToLower(rest), failedPrefix):
		return Failed(strings.TrimSpace(rest[len(failedPrefix):])), true
	default:
		return Annotation{Kind: KindUnknown, Message: rest}, true
	}
}

// FindAnnotation returns the index and content of the first annotation line.
func FindAnnotation(lines []string) (int, Annotation, bool) {
	for i, line := range lines {
		if a, ok := ParseAnnotation(line); ok {
			return i, a, true
		}
	}
	return -1, Annotation{}, false
}

// ExtractAnnotationValue returns the install path recorded in the buffer. It
// reports false when there is no annotation or it holds a placeholder or a
// failure.
func ExtractAnnotationValue(lines []string) (string, bool) {
	_, a, ok := FindAnnotation(lines)
	if !ok || a.Kind != KindFound {
		return "", false
	}
	return a.Path, true
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
