// Package main is the entry point for the npx-scripts CLI.
package main

import (
	"github.com/arciisine/npx-types-plugin/cmd/npx-scripts/cmd"
)

// Version information, set by build flags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.Version = version
	cmd.Commit = commit
	cmd.Date = date
	cmd.Execute()
}
