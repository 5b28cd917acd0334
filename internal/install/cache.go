// Package install owns the managed cache of npm packages that scripts
// declare in their shebang. It validates existing installs, installs
// missing ones into an isolated directory per reference, and keeps an
// in-memory record of what was verified during the session.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/arciisine/npx-types-plugin/internal/directive"
	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
	"github.com/arciisine/npx-types-plugin/internal/guard"
	"github.com/arciisine/npx-types-plugin/internal/logging"
)

const (
	// DefaultCommand is the package manager used for installs.
	DefaultCommand = "npm"

	stagingDir    = ".staging"
	stagingPrefix = "npx-scripts-"
)

// DefaultArgs precede the reference on the install command line.
var DefaultArgs = []string{"install", "--no-save"}

// DefaultRoot returns the default cache root under the user cache directory.
func DefaultRoot() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating user cache dir: %w", err)
	}
	return filepath.Join(dir, "npx-scripts"), nil
}

// Options configures a Cache. Zero fields take defaults.
type Options struct {
	// Root is the managed cache directory.
	Root string
	// Fs is the filesystem the cache operates on.
	Fs afero.Fs
	// Runner spawns the install command.
	Runner Runner
	// Resolver performs standard module resolution during validation.
	Resolver *Resolver
	// Command and Args form the install command; the reference is appended.
	Command string
	Args    []string
	// Timeout bounds a single install. Zero means no limit.
	Timeout time.Duration
	// Logger receives cache events and install output.
	Logger *logging.Logger
}

// Record is the last known outcome for a reference in this session.
type Record struct {
	Ref        directive.Ref
	Location   string
	Err        error
	VerifiedAt time.Time
}

// Entry describes one managed directory under the cache root.
type Entry struct {
	Key     string `json:"key" yaml:"key"`
	Dir     string `json:"dir" yaml:"dir"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Valid   bool   `json:"valid" yaml:"valid"`
}

// Cache installs and validates packages under a managed root.
type Cache struct {
	root     string
	fs       afero.Fs
	runner   Runner
	resolver *Resolver
	command  string
	args     []string
	timeout  time.Duration
	logger   *logging.Logger

	serial guard.Serial[string]

	mu      sync.RWMutex
	records map[string]Record
}

// New creates a cache from opts.
func New(opts Options) (*Cache, error) {
	root := opts.Root
	if root == "" {
		def, err := DefaultRoot()
		if err != nil {
			return nil, err
		}
		root = def
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving cache root: %w", err)
	}

	c := &Cache{
		root:     filepath.Clean(root),
		fs:       opts.Fs,
		runner:   opts.Runner,
		resolver: opts.Resolver,
		command:  opts.Command,
		args:     opts.Args,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		records:  make(map[string]Record),
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.runner == nil {
		c.runner = ExecRunner{}
	}
	if c.resolver == nil {
		wd, _ := os.Getwd()
		c.resolver = NewResolver(c.fs, wd, NodePathEntries())
	}
	if c.command == "" {
		c.command = DefaultCommand
	}
	if c.args == nil {
		c.args = slices.Clone(DefaultArgs)
	}
	if c.logger == nil {
		c.logger = logging.Global()
	}
	return c, nil
}

// Root returns the absolute cache root.
func (c *Cache) Root() string { return c.root }

// Fs returns the filesystem the cache operates on.
func (c *Cache) Fs() afero.Fs { return c.fs }

// Target returns the managed directory for ref.
func (c *Cache) Target(ref directive.Ref) string {
	return filepath.Join(c.root, ref.Safe())
}

// Validate reports whether ref is satisfied by an installed package and
// returns the package directory. A non-empty hint, typically the path from
// an existing annotation, is checked instead of standard resolution; an
// invalid hint is not retried through standard resolution. Callers that
// want the fallback follow up with Locate.
func (c *Cache) Validate(ctx context.Context, ref directive.Ref, hint string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	request := hint
	if request == "" {
		request = ref.Name()
	}

	file, err := c.resolver.Resolve(request)
	if err != nil {
		c.logger.Debug("Module not resolved", "module", ref.Full(), "request", request, "error", err)
		return "", false
	}
	dir, ok := FindRoot(c.fs, file)
	if !ok {
		c.logger.Debug("No package root", "module", ref.Full(), "file", file)
		return "", false
	}
	if !c.matches(dir, ref) {
		return "", false
	}
	return dir, true
}

func (c *Cache) matches(dir string, ref directive.Ref) bool {
	if err := c.verify(dir, ref); err != nil {
		c.logger.Debug("Install rejected", "module", ref.Full(), "dir", dir, "error", err)
		return false
	}
	return true
}

// verify checks the manifest in dir against ref. A manifest for another
// package or version yields an ErrValidation error.
func (c *Cache) verify(dir string, ref directive.Ref) error {
	m, err := ReadManifest(c.fs, dir)
	if err != nil {
		return err
	}
	if !m.Matches(ref) {
		return npxerrors.ValidationMismatch(ref.Full(), dir, m.Name+"@"+m.Version)
	}
	return nil
}

// Locate returns a valid existing install of ref, looking first through
// standard resolution and then in the managed cache. It never installs.
func (c *Cache) Locate(ctx context.Context, ref directive.Ref) (string, bool) {
	if dir, ok := c.Validate(ctx, ref, ""); ok {
		return dir, true
	}
	target := c.Target(ref)
	if ok, _ := afero.DirExists(c.fs, target); ok && c.matches(target, ref) {
		return target, true
	}
	return "", false
}

// Install makes ref available and returns its package directory. Without
// force an already valid install is returned as is. Concurrent calls for
// the same reference share one install.
func (c *Cache) Install(ctx context.Context, ref directive.Ref, force bool) (string, error) {
	path, _, err := c.serial.Do(ctx, ref.Full(), func(ctx context.Context) (string, error) {
		return c.install(ctx, ref, force)
	})
	return path, err
}

func (c *Cache) install(ctx context.Context, ref directive.Ref, force bool) (string, error) {
	log := c.logger.With("module", ref.Full())

	if !force {
		if dir, ok := c.Locate(ctx, ref); ok {
			c.remember(ref, dir, nil)
			return dir, nil
		}
	}

	target := c.Target(ref)

	if err := c.Uninstall(ref); err != nil {
		return "", err
	}

	staging, err := c.stage()
	if err != nil {
		return "", err
	}
	defer func() {
		if err := c.fs.RemoveAll(staging); err != nil {
			log.Warn("Failed to remove staging dir", "dir", staging, "error", err)
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := log.Writer(logging.LevelDebug)
	cmd := Command{
		Name:   c.command,
		Args:   append(slices.Clone(c.args), ref.Full()),
		Dir:    staging,
		Output: out,
	}
	log.Info("Installing", "command", cmd.String(), "dir", staging)
	start := time.Now()
	res, err := c.runner.Run(ctx, cmd)
	out.Flush()

	if err != nil {
		var ierr error
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			ierr = npxerrors.InstallTimeout(ref.Full(), c.timeout)
		case errors.Is(err, context.Canceled):
			return "", err
		default:
			ierr = npxerrors.Wrap(err, npxerrors.ErrInstall, fmt.Sprintf("failed to run %s", c.command)).
				WithDetails("module", ref.Full())
		}
		c.remember(ref, "", ierr)
		log.Error("Install failed", "error", ierr)
		return "", ierr
	}
	if res.ExitCode != 0 {
		msg := CleanInstallError(ref, res.Stderr+"\n"+res.Stdout)
		ierr := npxerrors.InstallFailed(ref.Full(), msg, res.ExitCode)
		c.remember(ref, "", ierr)
		log.Error("Install failed", "exit_code", res.ExitCode, "message", msg)
		return "", ierr
	}

	modules := filepath.Join(staging, "node_modules")
	pkg := filepath.Join(modules, filepath.FromSlash(ref.Name()))
	if err := c.fs.Rename(pkg, target); err != nil {
		return "", npxerrors.IOFailure("move", pkg, err)
	}
	if err := c.fs.Rename(modules, filepath.Join(target, "node_modules")); err != nil {
		return "", npxerrors.IOFailure("move", modules, err)
	}

	log.Info("Installed", "dir", target, "duration", time.Since(start).Round(time.Millisecond))
	c.remember(ref, target, nil)
	return target, nil
}

// stage creates a fresh staging directory under the cache root.
func (c *Cache) stage() (string, error) {
	parent := filepath.Join(c.root, stagingDir)
	if err := c.fs.MkdirAll(parent, 0o755); err != nil {
		return "", npxerrors.IOFailure("create", parent, err)
	}
	dir, err := afero.TempDir(c.fs, parent, stagingPrefix)
	if err != nil {
		return "", npxerrors.IOFailure("create", parent, err)
	}
	return dir, nil
}

// Uninstall removes the managed install of ref, if any.
func (c *Cache) Uninstall(ref directive.Ref) error {
	target := c.Target(ref)
	if !c.owns(target) {
		return npxerrors.OutsideCache(target, c.root)
	}

	exists, err := afero.Exists(c.fs, target)
	if err != nil {
		return npxerrors.IOFailure("stat", target, err)
	}
	if exists {
		c.logger.Debug("Removing managed install", "module", ref.Full(), "dir", target)
		if err := c.fs.RemoveAll(target); err != nil {
			return npxerrors.IOFailure("remove", target, err)
		}
	}

	c.mu.Lock()
	delete(c.records, ref.Full())
	c.mu.Unlock()
	return nil
}

// owns reports whether path lies strictly inside the cache root.
func (c *Cache) owns(path string) bool {
	rel, err := filepath.Rel(c.root, filepath.Clean(path))
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Forget drops the session record of ref without touching the disk.
func (c *Cache) Forget(ref directive.Ref) {
	c.mu.Lock()
	delete(c.records, ref.Full())
	c.mu.Unlock()
	c.serial.Forget(ref.Full())
}

// Lookup returns the session record of ref.
func (c *Cache) Lookup(ref directive.Ref) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[ref.Full()]
	return r, ok
}

func (c *Cache) remember(ref directive.Ref, location string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[ref.Full()] = Record{
		Ref:        ref,
		Location:   location,
		Err:        err,
		VerifiedAt: time.Now(),
	}
}

// Entries lists the managed directories under the cache root.
func (c *Cache) Entries() ([]Entry, error) {
	infos, err := afero.ReadDir(c.fs, c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, npxerrors.IOFailure("read", c.root, err)
	}

	var entries []Entry
	for _, info := range infos {
		if !info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			continue
		}
		e := Entry{Key: info.Name(), Dir: filepath.Join(c.root, info.Name())}
		if m, err := ReadManifest(c.fs, e.Dir); err == nil {
			e.Name = m.Name
			e.Version = m.Version
			e.Valid = keyFor(m.Name, "") == e.Key || keyFor(m.Name, m.Version) == e.Key
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func keyFor(name, version string) string {
	full := name
	if version != "" {
		full += "@" + version
	}
	ref, err := directive.ParseRef(full)
	if err != nil {
		return ""
	}
	return ref.Safe()
}

// Prune removes invalid entries, or every entry when all is set, and
// returns the removed directories.
func (c *Cache) Prune(all bool) ([]string, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if e.Valid && !all {
			continue
		}
		if err := c.fs.RemoveAll(e.Dir); err != nil {
			return removed, npxerrors.IOFailure("remove", e.Dir, err)
		}
		removed = append(removed, e.Dir)
	}

	if all {
		staging := filepath.Join(c.root, stagingDir)
		if err := c.fs.RemoveAll(staging); err != nil {
			return removed, npxerrors.IOFailure("remove", staging, err)
		}
		c.mu.Lock()
		clear(c.records)
		c.mu.Unlock()
	}
	return removed, nil
}

// installNoise are fragments npm adds around the relevant error text.
var installNoise = []string{
	"npm ERR! notarget",
	"npm error notarget",
	"npm ERR! 404",
	"npm error 404",
	"npm ERR!",
	"npm error",
	"Command failed:",
	"Command failed",
}

// CleanInstallError reduces install output to a single line suitable for
// an annotation: the first line mentioning the reference, or the first
// non-empty line, with npm's noise removed.
func CleanInstallError(ref directive.Ref, output string) string {
	lines := directive.SplitLines(output)
	for _, line := range lines {
		if strings.Contains(line, ref.Full()) {
			if cleaned := cleanLine(line); cleaned != "" {
				return cleaned
			}
		}
	}
	for _, line := range lines {
		if cleaned := cleanLine(line); cleaned != "" {
			return cleaned
		}
	}
	return ""
}

func cleanLine(line string) string {
	for _, n := range installNoise {
		line = strings.ReplaceAll(line, n, "")
	}
	return strings.Join(strings.Fields(line), " ")
}
