package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
	"github.com/arciisine/npx-types-plugin/internal/session"
	"github.com/arciisine/npx-types-plugin/internal/tui"
)

// uninstallCmd represents the uninstall command.
var uninstallCmd = &cobra.Command{
	Use:   "uninstall <file>...",
	Short: "Remove the managed install a script uses",
	Long: `Remove the managed install of the package each script declares, and the
script's annotation line. Installs found through standard module resolution
are never touched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

// runUninstall handles the uninstall command.
func runUninstall(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	plain := !tui.IsTerminal(cmd.OutOrStdout())
	for _, path := range args {
		res, err := e.session.UninstallFile(path)
		if err != nil {
			return err
		}
		if res.State == session.StateNoModule {
			return npxerrors.NoDirective(path)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.FormatOutcome(tui.Outcome{Path: path, Result: res}, plain))
	}
	return nil
}
