package project

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.yaml.in/yaml/v3"

	"github.com/airule-dev/airule/internal/branding"
	"github.com/airule-dev/airule/internal/source"
)

const (
	configFile   = "airule.yaml"
	rulesFile    = "rules.md"
	exportersDir = "exporters"
)

// Config is the .airule/airule.yaml structure.
type Config struct {
	// Rules is the project-relative path of the canonical rule document.
	// Empty means .airule/rules.md.
	Rules string `yaml:"rules,omitempty"`

	// Sources lists rule sources in merge order; the first is the base.
	// Empty means the canonical rule document is the only source.
	Sources []source.Descriptor `yaml:"sources,omitempty"`

	// Exporters names the adapters to sync.
	Exporters []string `yaml:"exporters"`

	// Team enables allow-list governance.
	Team bool `yaml:"team,omitempty"`

	// LockfileMode is "soft" or "strict" (team mode only). Empty falls
	// back to the user config default.
	LockfileMode string `yaml:"lockfile_mode,omitempty"`

	// DetectionIgnore lists agent names detection must never suggest.
	DetectionIgnore []string `yaml:"detection_ignore,omitempty"`

	// Extra preserves keys this version does not know about, so a patch
	// by an older binary never drops a newer binary's settings.
	Extra map[string]any `yaml:",inline"`
}

// Dir returns the project's dot-directory (<project>/.airule).
func Dir(projectPath string) string {
	return filepath.Join(projectPath, branding.ProjectDir())
}

// ConfigPath returns the full path to the project config file.
func ConfigPath(projectPath string) string {
	return filepath.Join(Dir(projectPath), configFile)
}

// RulesPath returns the absolute path of the canonical rule document.
func (c *Config) RulesPath(projectPath string) string {
	if c.Rules != "" {
		return filepath.Join(projectPath, filepath.FromSlash(c.Rules))
	}
	return filepath.Join(Dir(projectPath), rulesFile)
}

// ExportersDir returns the directory scanned for adapter manifests.
func ExportersDir(projectPath string) string {
	return filepath.Join(Dir(projectPath), exportersDir)
}

// ResolvedSources returns the configured sources, defaulting to the
// canonical rule document as the sole (base) source.
func (c *Config) ResolvedSources(projectPath string) []source.Descriptor {
	if len(c.Sources) > 0 {
		return c.Sources
	}
	return []source.Descriptor{{Type: source.TypeLocal, Path: c.RulesPath(projectPath)}}
}

// Load reads and parses the project config.
func Load(projectPath string) (*Config, error) {
	path := ConfigPath(projectPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project config %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing project config %s: %w", path, err)
	}
	return &config, nil
}

// Save writes the project config. This is the only write path for the
// config file.
func Save(projectPath string, config *Config) error {
	if err := os.MkdirAll(Dir(projectPath), 0755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling project config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(projectPath), data, 0644); err != nil {
		return fmt.Errorf("writing project config: %w", err)
	}
	return nil
}

// EnableExporter adds an adapter name to the config if absent. Returns
// true when the config changed; the caller decides when to Save.
func (c *Config) EnableExporter(name string) bool {
	if slices.Contains(c.Exporters, name) {
		return false
	}
	c.Exporters = append(c.Exporters, name)
	return true
}

// defaultRulesDoc is the scaffolded canonical document.
const defaultRulesDoc = `---
id: %s
version: 0.1.0
---

## Project Overview

Describe the project here so agents start with the right context.

## Conventions

- Match the existing code style.
- Keep changes focused; avoid drive-by refactors.
`

// Init scaffolds .airule/ with a config and a starter rule document.
// Existing files are left untouched.
func Init(projectPath string, exporters []string) error {
	if err := os.MkdirAll(ExportersDir(projectPath), 0755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	configPath := ConfigPath(projectPath)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := &Config{Exporters: exporters}
		if err := Save(projectPath, config); err != nil {
			return err
		}
	}

	rulesPath := filepath.Join(Dir(projectPath), rulesFile)
	if _, err := os.Stat(rulesPath); os.IsNotExist(err) {
		id := filepath.Base(projectPath)
		doc := fmt.Sprintf(defaultRulesDoc, id)
		if err := os.WriteFile(rulesPath, []byte(doc), 0644); err != nil {
			return fmt.Errorf("writing starter rule document: %w", err)
		}
	}
	return nil
}
