package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arciisine/npx-types-plugin/internal/session"
	"github.com/arciisine/npx-types-plugin/internal/tui"
	"github.com/arciisine/npx-types-plugin/internal/watch"
)

// checkCmd represents the check command.
var checkCmd = &cobra.Command{
	Use:   "check <path>...",
	Short: "Install declared packages and annotate scripts",
	Long: `Check each script: read the package declared on its shebang line,
validate or install it, and write the reference annotation.

Directories are searched for scripts matching watch.patterns.

Examples:
  npx-scripts check bin/tool.js     # Check one script
  npx-scripts check .               # Check every script below the current directory
  npx-scripts check --force tool.js # Reinstall even when an install exists`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolP("force", "f", false, "Reinstall even when a valid install exists")
}

// runCheck handles the check command.
func runCheck(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	paths, err := watch.Scan(args, e.cfg.Watch.Patterns, e.cfg.Watch.Ignore)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		cmd.Println("No scripts found.")
		return nil
	}

	check := func(ctx context.Context, path string) (session.Result, error) {
		return e.session.ProcessFile(ctx, path, force)
	}
	outcomes, err := tui.RunChecks(cmd.Context(), cmd.OutOrStdout(), paths, check)
	if err != nil {
		return err
	}
	if failed := tui.Summarize(outcomes).Failed; failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, len(outcomes))
	}
	return nil
}
