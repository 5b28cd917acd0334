package directive

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultLauncher is the ephemeral-package runner named on the shebang line.
const DefaultLauncher = "npx"

// Parser matches shebang lines for a specific launcher token.
type Parser struct {
	launcher string
	pattern  *regexp.Regexp
}

// NewParser creates a parser for the given launcher. An empty launcher
// selects DefaultLauncher.
func NewParser(launcher string) *Parser {
	launcher = strings.TrimSpace(launcher)
	if launcher == "" {
		launcher = DefaultLauncher
	}
	// #!/<anything>(/| )<launcher> [-flags ...] (@scope/)?name(@version)? [rest]
	expr := fmt.Sprintf(
		`^#!\s*/.*?(?:/| )%s\s+(?:-{1,2}[\w-]+\s+)*((?:@[\w.-]+/)?[\w.-]+(?:@\S+)?)(?:\s.*)?$`,
		regexp.QuoteMeta(launcher),
	)
	return &Parser{
		launcher: launcher,
		pattern:  regexp.MustCompile(expr),
	}
}

var defaultParser = NewParser(DefaultLauncher)

// Launcher returns the launcher token this parser matches.
func (p *Parser) Launcher() string { return p.launcher }

// ModuleReference returns the reference declared by the buffer's directive
// line. It reports false when there is no directive line or it does not run
// through the launcher.
func (p *Parser) ModuleReference(lines []string) (Ref, bool) {
	line, ok := ExtractDirectiveLine(lines)
	if !ok {
		return Ref{}, false
	}
	m := p.pattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return Ref{}, false
	}
	ref, err := ParseRef(m[1])
	if err != nil {
		return Ref{}, false
	}
	return ref, true
}

// ExtractDirectiveLine returns the first line starting with "#!".
func ExtractDirectiveLine(lines []string) (string, bool) {
	for _, line := range lines {
		if strings.HasPrefix(line, "#!") {
			return line, true
		}
	}
	return "", false
}

// ExtractModuleReference parses the directive line with the default launcher.
func ExtractModuleReference(lines []string) (Ref, bool) {
	return defaultParser.ModuleReference(lines)
}

// SplitLines splits text into lines, accepting both \n and \r\n endings.
// A trailing newline does not produce an extra empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
