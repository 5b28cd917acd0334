package install

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Resolver locates installed packages the way Node's module resolution
// does: node_modules directories from a base directory upward, then any
// extra search roots such as NODE_PATH entries.
type Resolver struct {
	fs      afero.Fs
	baseDir string
	extra   []string
}

// NewResolver creates a resolver searching upward from baseDir and then in
// each of extra.
func NewResolver(fs afero.Fs, baseDir string, extra []string) *Resolver {
	return &Resolver{fs: fs, baseDir: baseDir, extra: extra}
}

// NodePathEntries splits the NODE_PATH environment variable.
func NodePathEntries() []string {
	var out []string
	for _, p := range filepath.SplitList(os.Getenv("NODE_PATH")) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SearchPaths returns the directories searched for a bare package name, in
// order.
func (r *Resolver) SearchPaths() []string {
	var paths []string
	if r.baseDir != "" {
		dir := filepath.Clean(r.baseDir)
		for {
			if filepath.Base(dir) != "node_modules" {
				paths = append(paths, filepath.Join(dir, "node_modules"))
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return append(paths, r.extra...)
}

// Resolve returns the entry file for request. An absolute request names a
// file or a package directory; anything else is a package name looked up in
// the search paths.
func (r *Resolver) Resolve(request string) (string, error) {
	if filepath.IsAbs(request) {
		return r.resolvePath(request)
	}
	for _, root := range r.SearchPaths() {
		if file, err := r.resolvePath(filepath.Join(root, filepath.FromSlash(request))); err == nil {
			return file, nil
		}
	}
	return "", fmt.Errorf("cannot find module %q", request)
}

func (r *Resolver) resolvePath(path string) (string, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}
	return r.resolvePackageDir(path)
}

// resolvePackageDir picks the package entry point, falling back to the
// manifest itself so packages without a runnable main still resolve.
func (r *Resolver) resolvePackageDir(dir string) (string, error) {
	var candidates []string
	if m, err := ReadManifest(r.fs, dir); err == nil && m.Main != "" {
		main := filepath.Join(dir, filepath.FromSlash(m.Main))
		candidates = append(candidates, main, main+".js", filepath.Join(main, "index.js"))
	}
	candidates = append(candidates, filepath.Join(dir, "index.js"), filepath.Join(dir, ManifestFile))

	for _, c := range candidates {
		if info, err := r.fs.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("no entry point in %s", dir)
}

// FindRoot walks upward from the directory containing file to the nearest
// directory whose manifest declares a name. Nested manifests without a
// name, such as {"type":"module"} stubs, are skipped.
func FindRoot(fs afero.Fs, file string) (string, bool) {
	dir := filepath.Dir(file)
	for {
		if m, err := ReadManifest(fs, dir); err == nil && m.Name != "" {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
