package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Scan expands paths into the scripts they select. Files are returned as
// given, made absolute; directories are walked and filtered by patterns and
// ignore together with the built-in ignores. The result is sorted and free
// of duplicates.
func Scan(paths, patterns, ignore []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if err := ValidatePatterns(patterns); err != nil {
		return nil, err
	}
	if err := ValidatePatterns(ignore); err != nil {
		return nil, err
	}
	ignores := append(append([]string{}, defaultIgnores...), ignore...)

	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve %q: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(abs)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			rel, err := filepath.Rel(abs, path)
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if rel != "." && (matchAny(ignores, rel) || matchAny(ignores, rel+"/")) {
					return filepath.SkipDir
				}
				return nil
			}
			if !matchAny(ignores, rel) && matchAny(patterns, rel) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("watch: scan %q: %w", abs, err)
		}
	}

	sort.Strings(out)
	return out, nil
}
