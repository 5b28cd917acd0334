package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// configCmd represents the config command.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging the config file, NPX_SCRIPTS_*
environment variables and command-line flags, as YAML.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// runConfig handles the config command.
func runConfig(cmd *cobra.Command, args []string) error {
	cfg, used, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if used != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
	}
	return writeStructured(cmd.OutOrStdout(), outputYAML, cfg)
}
