package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ManifestName is the per-project configuration file.
const ManifestName = "capnp-diff.toml"

// Manifest holds per-project defaults so CI and developers run the same
// check without repeating flags.
type Manifest struct {
	Schemas SchemasSection `toml:"schemas"`
	Output  OutputSection  `toml:"output"`
}

// SchemasSection configures the compiler runs.
type SchemasSection struct {
	// Files are the schema entry points, relative to the manifest dir.
	Files []string `toml:"files"`
	// ImportPaths are extra -I directories.
	ImportPaths []string `toml:"import_paths"`
	// Compiler overrides the capnp binary.
	Compiler string `toml:"compiler"`
	// NoStandardImport suppresses the built-in import path.
	NoStandardImport bool `toml:"no_standard_import"`
}

// OutputSection configures rendering defaults.
type OutputSection struct {
	// Format: pretty, json, or binary.
	Format string `toml:"format"`
	// Context lines around snippets in pretty output.
	Context int `toml:"context"`
	// Color: auto, on, or off.
	Color string `toml:"color"`
}

// FindManifest walks up from startDir to locate capnp-diff.toml.
func FindManifest(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load parses a manifest file and validates its settings.
func Load(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// LoadNearest finds and parses the closest manifest. Returns (nil, "",
// nil) when there is none: the manifest is optional.
func LoadNearest(startDir string) (*Manifest, string, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, "", err
	}
	m, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return m, filepath.Dir(path), nil
}

func (m *Manifest) validate() error {
	switch m.Output.Format {
	case "", "pretty", "json", "binary":
	default:
		return fmt.Errorf("unknown output format %q", m.Output.Format)
	}
	switch m.Output.Color {
	case "", "auto", "on", "off":
	default:
		return fmt.Errorf("unknown color mode %q", m.Output.Color)
	}
	if m.Output.Context < 0 {
		return fmt.Errorf("negative context %d", m.Output.Context)
	}
	return nil
}
