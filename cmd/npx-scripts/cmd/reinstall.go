package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
	"github.com/arciisine/npx-types-plugin/internal/session"
	"github.com/arciisine/npx-types-plugin/internal/tui"
)

// reinstallCmd represents the reinstall command.
var reinstallCmd = &cobra.Command{
	Use:   "reinstall <file>",
	Short: "Remove and reinstall the package a script declares",
	Long: `Remove the script's annotation and its managed install, install the
declared package again and write a fresh annotation.

Use this after a failed install once the cause is fixed; failures are not
retried automatically within a session.`,
	Args: cobra.ExactArgs(1),
	RunE: runReinstall,
}

func init() {
	rootCmd.AddCommand(reinstallCmd)
}

// runReinstall handles the reinstall command.
func runReinstall(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	path := args[0]
	res, err := e.session.ProcessFile(cmd.Context(), path, true)
	if err == nil && res.State == session.StateNoModule {
		err = npxerrors.NoDirective(path)
	}
	plain := !tui.IsTerminal(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), tui.FormatOutcome(tui.Outcome{Path: path, Result: res, Err: err}, plain))
	return err
}
