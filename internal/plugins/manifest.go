package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// Manifest selects a catalog unit and configures it.
//
//	{ "unit": "weather", "options": { "city": "140010" } }
type Manifest struct {
	// Name is derived from the file name, not read from the file.
	Name     string  `json:"-"`
	Path     string  `json:"-"`
	Unit     string  `json:"unit"`
	Disabled bool    `json:"disabled,omitempty"`
	Options  Options `json:"options,omitempty"`
}

// isManifestFile reports whether a directory entry is a candidate manifest.
// Hidden files and files starting with "_" are reserved and never loaded.
func isManifestFile(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".json" || ext == ".json5"
}

// listManifests returns candidate manifest paths in directory order (sorted by name).
// A missing directory yields no candidates and no error.
func listManifests(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat plugin dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isManifestFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

// readManifest parses one manifest file. A manifest without "unit" uses its file stem as the kind.
func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m := &Manifest{}
	if err := json5.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	base := filepath.Base(path)
	m.Name = strings.TrimSuffix(base, filepath.Ext(base))
	m.Path = path
	if m.Unit == "" {
		m.Unit = m.Name
	}
	return m, nil
}
