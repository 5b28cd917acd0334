package install

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/arciisine/npx-types-plugin/internal/directive"
)

// ManifestFile is the name of a package's manifest.
const ManifestFile = "package.json"

// Manifest holds the fields of package.json that npx-scripts reads.
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Main    string `json:"main,omitempty"`
	Types   string `json:"types,omitempty"`
	Typings string `json:"typings,omitempty"`
}

// ReadManifest reads and decodes dir/package.json.
func ReadManifest(fs afero.Fs, dir string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Join(dir, ManifestFile), err)
	}
	return &m, nil
}

// Matches reports whether the manifest satisfies ref: the names are equal
// and, when ref declares a version, the versions are equal as strings.
func (m *Manifest) Matches(ref directive.Ref) bool {
	if m == nil || m.Name != ref.Name() {
		return false
	}
	return !ref.HasVersion() || m.Version == ref.Version()
}

// HasTypings reports whether the package installed at dir ships type
// declarations, either through its manifest or a root index.d.ts.
func (m *Manifest) HasTypings(fs afero.Fs, dir string) bool {
	if m == nil {
		return false
	}
	if m.Types != "" || m.Typings != "" {
		return true
	}
	ok, _ := afero.Exists(fs, filepath.Join(dir, "index.d.ts"))
	return ok
}
