package cmd

import (
	"github.com/spf13/cobra"

	"github.com/arciisine/npx-types-plugin/internal/version"
)

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show detailed version information for npx-scripts.

Displays the current version, commit hash, build date,
and Go/platform information.`,
	RunE: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringP("output", "o", outputText, "Output format: text, yaml or json")
}

// runVersion handles the version command.
func runVersion(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutput(format); err != nil {
		return err
	}

	info := version.NewInfo(Version, Commit, Date)
	if format != outputText {
		return writeStructured(cmd.OutOrStdout(), format, info)
	}
	cmd.Println(info.FullString())
	return nil
}
