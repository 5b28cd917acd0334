// Package watch re-checks scripts when they change on disk.
//
// It monitors a directory tree for files matching glob patterns. Each path
// has its own debouncer, so a burst of writes to one script (an editor
// saving through a temp file, or the annotation written back by the check
// itself) collapses into a single check.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/arciisine/npx-types-plugin/internal/guard"
	"github.com/arciisine/npx-types-plugin/internal/logging"
)

// DefaultPatterns select the scripts that can carry a directive.
var DefaultPatterns = []string{"**/*.js", "**/*.mjs", "**/*.cjs"}

// defaultIgnores are never watched, whatever the configured ignores.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// Config holds the parameters for a Watcher.
type Config struct {
	// BaseDir is the root directory to watch. Empty means the working
	// directory.
	BaseDir string
	// Patterns are doublestar globs, relative to BaseDir, selecting the files
	// that trigger checks. Empty means DefaultPatterns.
	Patterns []string
	// Ignore are extra globs merged with the built-in ignores.
	Ignore []string
	// Debounce is the quiet period per path. Zero means guard.DefaultDelay.
	Debounce time.Duration
	// OnChange is called with the Run context and the absolute path of a
	// changed file once its quiet period ends.
	OnChange func(ctx context.Context, path string) error
	// OnRemove is called when a watched file is removed or renamed away.
	OnRemove func(path string)
	// Logger receives watcher events. Nil means the global logger.
	Logger *logging.Logger
}

// Watcher monitors a directory tree. Run must be called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	baseDir  string
	patterns []string
	ignores  []string
	debounce time.Duration
	logger   *logging.Logger
	started  atomic.Bool

	mu      sync.Mutex
	pending map[string]*guard.Debouncer[string, struct{}]
	retired []*guard.Debouncer[string, struct{}]
	wg      sync.WaitGroup
}

// New creates a Watcher and registers every non-ignored directory under
// BaseDir.
func New(cfg Config) (*Watcher, error) {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if err := ValidatePatterns(patterns); err != nil {
		return nil, err
	}
	if err := ValidatePatterns(cfg.Ignore); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Global()
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		baseDir:  absBase,
		patterns: patterns,
		ignores:  append(append([]string{}, defaultIgnores...), cfg.Ignore...),
		debounce: cfg.Debounce,
		logger:   logger,
		pending:  make(map[string]*guard.Debouncer[string, struct{}]),
	}
	if err := w.addDirectories(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// BaseDir returns the absolute watched root.
func (w *Watcher) BaseDir() string { return w.baseDir }

// Run processes filesystem events until ctx is cancelled. Checks run with
// ctx, so cancelling it also cancels a check in progress. Run returns nil on
// cancellation, after in-flight checks have finished.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}
	defer func() {
		w.stopAll()
		w.wg.Wait()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("Closing watcher failed", "error", err)
		}
	}()

	w.logger.Info("Watching", "dir", w.baseDir, "patterns", w.patterns)
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			w.handle(ctx, evt)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("Events dropped", "error", err)
				continue
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, evt fsnotify.Event) {
	rel, err := filepath.Rel(w.baseDir, evt.Name)
	if err != nil || w.isIgnored(rel) {
		return
	}

	if evt.Has(fsnotify.Create) {
		w.maybeAddDir(evt.Name)
	}
	if !w.Matches(rel) {
		return
	}

	switch {
	case evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename):
		w.drop(evt.Name)
		if w.cfg.OnRemove != nil {
			w.cfg.OnRemove(evt.Name)
		}
	case evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create):
		w.schedule(ctx, evt.Name)
	}
}

// schedule feeds path to its debouncer without blocking the event loop.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	d, ok := w.pending[path]
	if !ok {
		d = guard.NewDebouncerContext(ctx, w.check, w.debounce)
		w.pending[path] = d
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if _, err := d.Call(ctx, path); err != nil && !errors.Is(err, guard.ErrStopped) && ctx.Err() == nil {
			w.logger.Warn("Check failed", "file", path, "error", err)
		}
	}()
}

func (w *Watcher) check(ctx context.Context, path string) (struct{}, error) {
	if w.cfg.OnChange == nil {
		return struct{}{}, nil
	}
	return struct{}{}, w.cfg.OnChange(ctx, path)
}

// drop stops the debouncer of a removed path. A check it already started
// keeps running, so the debouncer is kept for stopAll to wait on.
func (w *Watcher) drop(path string) {
	w.mu.Lock()
	d, ok := w.pending[path]
	if ok {
		delete(w.pending, path)
		w.retired = append(w.retired, d)
	}
	w.mu.Unlock()
	if ok {
		d.Stop()
	}
}

// stopAll stops every debouncer and waits for the checks they started.
func (w *Watcher) stopAll() {
	w.mu.Lock()
	all := w.retired
	w.retired = nil
	for path, d := range w.pending {
		all = append(all, d)
		delete(w.pending, path)
	}
	w.mu.Unlock()

	for _, d := range all {
		d.Stop()
	}
	for _, d := range all {
		d.Wait()
	}
}

// addDirectories registers BaseDir and every non-ignored directory below.
func (w *Watcher) addDirectories() error {
	err := filepath.WalkDir(w.baseDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Debug("Skipping inaccessible path", "path", path, "error", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.baseDir, path)
		if err != nil {
			return nil
		}
		if w.isIgnored(rel) || w.isIgnored(rel+"/") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk directory tree: %w", err)
	}
	return nil
}

func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	rel, err := filepath.Rel(w.baseDir, path)
	if err != nil || w.isIgnored(rel) || w.isIgnored(rel+"/") {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("Cannot watch new directory", "dir", path, "error", err)
	}
}

func (w *Watcher) isIgnored(rel string) bool {
	return matchAny(w.ignores, rel)
}

// Matches reports whether rel, relative to the base directory, selects a
// watched script.
func (w *Watcher) Matches(rel string) bool {
	return !w.isIgnored(rel) && matchAny(w.patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, normalized); err == nil && ok {
			return true
		}
	}
	return false
}

// ValidatePatterns checks that every pattern is a valid doublestar glob.
func ValidatePatterns(patterns []string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid pattern %q", pat)
		}
	}
	return nil
}
