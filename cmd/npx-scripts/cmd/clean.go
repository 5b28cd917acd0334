package cmd

import (
	"github.com/spf13/cobra"

	"github.com/arciisine/npx-types-plugin/internal/watch"
)

// cleanCmd represents the clean command.
var cleanCmd = &cobra.Command{
	Use:   "clean <path>...",
	Short: "Strip annotation lines from scripts",
	Long: `Remove every annotation line from the given scripts, leaving the rest of
each file untouched. Managed installs are kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

// runClean handles the clean command.
func runClean(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	paths, err := watch.Scan(args, e.cfg.Watch.Patterns, e.cfg.Watch.Ignore)
	if err != nil {
		return err
	}

	total := 0
	for _, path := range paths {
		n, err := e.session.CloseFile(path)
		if err != nil {
			return err
		}
		if n > 0 {
			cmd.Printf("%s: removed %d line(s)\n", path, n)
		}
		total += n
	}
	if total == 0 {
		cmd.Println("No annotations found.")
	}
	return nil
}
