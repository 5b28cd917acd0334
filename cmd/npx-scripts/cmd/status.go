package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arciisine/npx-types-plugin/internal/directive"
	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
	"github.com/arciisine/npx-types-plugin/internal/session"
	"github.com/arciisine/npx-types-plugin/internal/tui"
	"github.com/arciisine/npx-types-plugin/internal/watch"
)

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status <path>...",
	Short: "Show the annotation state of scripts",
	Long: `Show the annotation state of each script without changing anything.

States: no-module, no-annotation, missing-typings, invalid-typings,
installing, valid and failed.

Examples:
  npx-scripts status bin/tool.js
  npx-scripts status --output yaml .`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("output", "o", outputText, "Output format: text, yaml or json")
}

// statusEntry is one script in structured status output.
type statusEntry struct {
	File           string `json:"file" yaml:"file"`
	session.Status `yaml:",inline"`
}

// runStatus handles the status command.
func runStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutput(format); err != nil {
		return err
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	paths, err := watch.Scan(args, e.cfg.Watch.Patterns, e.cfg.Watch.Ignore)
	if err != nil {
		return err
	}

	entries := make([]statusEntry, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return npxerrors.IOFailure("read", path, err)
		}
		st := e.session.Verify(cmd.Context(), directive.SplitLines(string(data)))
		entries = append(entries, statusEntry{File: path, Status: st})
	}

	if format != outputText {
		return writeStructured(cmd.OutOrStdout(), format, entries)
	}
	plain := !tui.IsTerminal(cmd.OutOrStdout())
	for _, entry := range entries {
		fmt.Fprintln(cmd.OutOrStdout(), tui.FormatStatus(entry.File, entry.Status, plain))
	}
	return nil
}
