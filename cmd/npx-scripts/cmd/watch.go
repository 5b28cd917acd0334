package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/arciisine/npx-types-plugin/internal/session"
	"github.com/arciisine/npx-types-plugin/internal/tui"
	"github.com/arciisine/npx-types-plugin/internal/watch"
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Check scripts as they change",
	Long: `Watch a directory tree and check every script matching watch.patterns
when it is written. Bursts of writes to one file are debounced
(watch.debounce, default 500ms).

A failed install is reported once per file until it succeeds again; run
"npx-scripts reinstall <file>" to retry it.

Examples:
  npx-scripts watch                  # Watch the current directory
  npx-scripts watch bin --clean-on-exit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("clean-on-exit", false, "Strip annotations from the files this run touched when it stops")
}

// runWatch handles the watch command. It stops when the command context is
// cancelled, which Execute ties to SIGINT and SIGTERM.
func runWatch(cmd *cobra.Command, args []string) error {
	cleanOnExit, _ := cmd.Flags().GetBool("clean-on-exit")

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	rep := &watchReporter{
		out:     cmd.OutOrStdout(),
		plain:   !tui.IsTerminal(cmd.OutOrStdout()),
		session: e.session,
	}
	w, err := watch.New(watch.Config{
		BaseDir:  dir,
		Patterns: e.cfg.Watch.Patterns,
		Ignore:   e.cfg.Watch.Ignore,
		Debounce: e.cfg.Watch.Debounce,
		OnChange: rep.onChange,
		OnRemove: e.session.Forget,
		Logger:   e.logger,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", w.BaseDir())
	runErr := w.Run(cmd.Context())

	if cleanOnExit {
		for _, path := range e.session.Touched() {
			if _, err := e.session.CloseFile(path); err != nil {
				e.logger.Warn("Cleaning annotations failed", "file", path, "error", err)
			}
		}
	}
	return runErr
}

// watchReporter prints the outcome of each check triggered by the watcher.
type watchReporter struct {
	mu      sync.Mutex
	out     io.Writer
	plain   bool
	session *session.Session
}

func (r *watchReporter) onChange(ctx context.Context, path string) error {
	res, err := r.session.ProcessFile(ctx, path, false)
	if ctx.Err() != nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		if r.session.ShouldPrompt(res.Key) {
			fmt.Fprintln(r.out, tui.FormatOutcome(tui.Outcome{Path: path, Result: res, Err: err}, r.plain))
			fmt.Fprintf(r.out, "  run \"npx-scripts reinstall %s\" to retry\n", path)
		}
		return nil
	case res.Changed:
		fmt.Fprintln(r.out, tui.FormatOutcome(tui.Outcome{Path: path, Result: res}, r.plain))
	}
	return nil
}
