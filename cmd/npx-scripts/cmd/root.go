// Package cmd provides the CLI commands for npx-scripts.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
)

// Version information, set from main before Execute.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "npx-scripts",
	Short: "Type declarations for npx shebang scripts",
	Long: `npx-scripts reads the package a script declares on its shebang line,
for example

  #!/usr/bin/env npx left-pad@1.3.0

installs it into a managed cache when it cannot be resolved, and records
the location in a triple-slash reference line so the type checker picks up
its declarations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addGlobalFlags(rootCmd)
}

// addGlobalFlags registers the persistent flags every subcommand reads.
func addGlobalFlags(c *cobra.Command) {
	c.PersistentFlags().String("config", "", "Path to config file (default: user config dir)")
	c.PersistentFlags().String("cache-dir", "", "Override the managed cache directory")
	c.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
}

// Execute runs the root command and exits non-zero on failure. SIGINT and
// SIGTERM cancel the command context, which stops a running install and
// removes its staging directory.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
	rootCmd.SetVersionTemplate("npx-scripts {{.Version}}\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprint(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

// Root returns the root command for testing purposes.
func Root() *cobra.Command {
	return rootCmd
}

func formatError(err error) string {
	var e *npxerrors.Error
	if errors.As(err, &e) {
		return e.Format()
	}
	return "Error: " + err.Error() + "\n"
}
