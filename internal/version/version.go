// Package version reports build information for npx-scripts.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name used in version output.
const Name = "npx-scripts"

// Info contains build information.
type Info struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
	GoVer   string `json:"go_version" yaml:"go_version"`
	OS      string `json:"os" yaml:"os"`
	Arch    string `json:"arch" yaml:"arch"`
}

// NewInfo creates an Info from the linker-set build variables. A "dev"
// version falls back to the module version recorded by go install.
func NewInfo(version, commit, date string) *Info {
	if version == "" || version == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			version = bi.Main.Version
		}
	}
	if version == "" {
		version = "dev"
	}
	return &Info{
		Version: version,
		Commit:  orUnknown(commit),
		Date:    orUnknown(date),
		GoVer:   runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// String returns a one-line version string.
func (i *Info) String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s)", Name, i.Version, i.Commit, i.Date)
}

// FullString returns a detailed version string.
func (i *Info) FullString() string {
	return fmt.Sprintf(`%s %s
  Commit:   %s
  Built:    %s
  Go:       %s
  OS/Arch:  %s/%s`, Name, i.Version, i.Commit, i.Date, i.GoVer, i.OS, i.Arch)
}
