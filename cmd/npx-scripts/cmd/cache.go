package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arciisine/npx-types-plugin/internal/tui/styles"
)

// cacheCmd represents the cache command group.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and prune the managed install cache",
	Long:  "Commands for the managed directory packages are installed into.",
}

// cacheListCmd lists managed entries.
var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed installs",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

// cachePruneCmd removes invalid entries.
var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove managed installs with a missing or mismatched manifest",
	Long: `Remove every managed directory whose package.json is missing or does not
match the directory name. With --all, every managed install is removed.`,
	Args: cobra.NoArgs,
	RunE: runCachePrune,
}

// cacheDirCmd prints the cache root.
var cacheDirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Print the managed cache directory",
	Args:  cobra.NoArgs,
	RunE:  runCacheDir,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd, cachePruneCmd, cacheDirCmd)

	cacheListCmd.Flags().StringP("output", "o", outputText, "Output format: text, yaml or json")
	cachePruneCmd.Flags().Bool("all", false, "Remove every managed install")
}

// runCacheList handles the cache list command.
func runCacheList(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutput(format); err != nil {
		return err
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := e.cache.Entries()
	if err != nil {
		return err
	}
	if format != outputText {
		return writeStructured(cmd.OutOrStdout(), format, entries)
	}

	if len(entries) == 0 {
		cmd.Println("Cache is empty.")
		return nil
	}
	for _, entry := range entries {
		icon := styles.IconValid
		if !entry.Valid {
			icon = styles.IconInvalid
		}
		pkg := entry.Name
		if entry.Version != "" {
			pkg += "@" + entry.Version
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-30s %s\n", icon, entry.Key, pkg)
	}
	return nil
}

// runCachePrune handles the cache prune command.
func runCachePrune(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	removed, err := e.cache.Prune(all)
	for _, dir := range removed {
		cmd.Printf("removed %s\n", dir)
	}
	if err != nil {
		return err
	}
	cmd.Printf("Pruned %d entries.\n", len(removed))
	return nil
}

// runCacheDir handles the cache dir command.
func runCacheDir(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cfg.Cache.Dir)
	return nil
}
