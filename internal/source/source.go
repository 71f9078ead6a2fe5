package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/airule-dev/airule/internal/ir"
	"github.com/airule-dev/airule/internal/syncerr"
)

// Type discriminates source descriptors.
type Type string

const (
	TypeLocal Type = "local"
	TypeGit   Type = "git"
)

// Descriptor identifies one rule source. The slice order in the project
// config is the merge order: first entry is the base, the rest overlays.
type Descriptor struct {
	Type Type   `yaml:"type"`
	Path string `yaml:"path,omitempty"`
	URL  string `yaml:"url,omitempty"`
	Ref  string `yaml:"ref,omitempty"`
}

// Identity returns a stable human-readable identifier for the source, used
// in conflict reports and cache keys.
func (d Descriptor) Identity() string {
	switch d.Type {
	case TypeGit:
		if d.Ref != "" {
			return d.URL + "@" + d.Ref
		}
		return d.URL
	default:
		return d.Path
	}
}

// Validate checks that the descriptor is well-formed.
func (d Descriptor) Validate() error {
	switch d.Type {
	case TypeLocal:
		if strings.TrimSpace(d.Path) == "" {
			return fmt.Errorf("local source: path is required")
		}
	case TypeGit:
		if strings.TrimSpace(d.URL) == "" {
			return fmt.Errorf("git source: url is required")
		}
	default:
		return fmt.Errorf("unknown source type %q", d.Type)
	}
	return nil
}

// packManifestNames is the fallback order for finding a pack manifest in a
// source directory.
var packManifestNames = []string{"airule-pack.yaml", "pack.yaml"}

// plainRuleNames is the fallback order for plain rule documents when a
// source directory has no pack manifest.
var plainRuleNames = []string{"rules.md", "AGENTS.md"}

// PackManifest declares where a pack source keeps its rule document.
type PackManifest struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version,omitempty"`
	Rules   string `yaml:"rules"`
}

// LoadFromDir resolves a source directory to an IR bundle. It looks for a
// pack manifest first; when none exists it reports ManifestNotFound and the
// caller may recover by falling back to LoadPlainFromDir.
func LoadFromDir(dir, fallbackID string) (*ir.Bundle, error) {
	manifestPath, err := findPackManifest(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading pack manifest %s: %w", manifestPath, err)
	}
	var pm PackManifest
	if err := yaml.Unmarshal(data, &pm); err != nil {
		return nil, fmt.Errorf("parsing pack manifest %s: %w", manifestPath, err)
	}
	if strings.TrimSpace(pm.Rules) == "" {
		return nil, fmt.Errorf("pack manifest %s: rules path is required", manifestPath)
	}

	rulesPath := filepath.Join(dir, filepath.FromSlash(pm.Rules))
	id := pm.Name
	if id == "" {
		id = fallbackID
	}
	return LoadFile(rulesPath, id)
}

// LoadPlainFromDir resolves a source directory without a pack manifest by
// probing the well-known plain rule file names.
func LoadPlainFromDir(dir, fallbackID string) (*ir.Bundle, error) {
	for _, name := range plainRuleNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p, fallbackID)
		}
	}
	return nil, fmt.Errorf("no rule document found in %s (tried %s)", dir, strings.Join(plainRuleNames, ", "))
}

// LoadFile parses a single rule document file into a bundle.
func LoadFile(path, fallbackID string) (*ir.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule document %s: %w", path, err)
	}
	bundle, err := ir.ParseDocument(data, fallbackID)
	if err != nil {
		return nil, fmt.Errorf("parsing rule document %s: %w", path, err)
	}
	return bundle, nil
}

func findPackManifest(dir string) (string, error) {
	for _, name := range packManifestNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", syncerr.New(syncerr.CodeManifestNotFound, "no pack manifest in %s", dir)
}
