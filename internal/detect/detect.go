// Package detect probes the project filesystem for agent tools that are
// present but not yet configured for sync. Detection never goes beyond
// file presence checks, and its results are cached in the sync state so
// the operator is not prompted about the same agents run after run.
package detect

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/airule-dev/airule/internal/exporter"
	"github.com/airule-dev/airule/internal/project"
)

// Agents returns the names of registered adapters whose output files
// already exist in the project, in registry order.
func Agents(projectPath string, reg *exporter.Registry) []string {
	var detected []string
	for _, name := range reg.Names() {
		adapter, ok := reg.Get(name)
		if !ok {
			continue
		}
		for _, out := range adapter.Manifest.Outputs {
			if _, err := os.Stat(filepath.Join(projectPath, filepath.FromSlash(out))); err == nil {
				detected = append(detected, name)
				break
			}
		}
	}
	return detected
}

// Suggest filters detected agents down to the ones worth surfacing:
// not configured and not ignored.
func Suggest(detected, configured, ignore []string) []string {
	var suggestions []string
	for _, name := range detected {
		if slices.Contains(configured, name) || slices.Contains(ignore, name) {
			continue
		}
		suggestions = append(suggestions, name)
	}
	return suggestions
}

// CacheIsCurrent reports whether the cached detection would surface the
// same suggestions as the current detected/configured sets, meaning no new
// prompt is needed. Comparison is over the derived suggestions, not the raw
// sets: a sync's own exports change what is detected without changing what
// is worth surfacing.
func CacheIsCurrent(cache *project.DetectionCache, detected, configured []string) bool {
	if cache == nil {
		return false
	}
	return slices.Equal(
		Suggest(cache.Detected, cache.Configured, nil),
		Suggest(detected, configured, nil),
	)
}

// NewCache builds a fresh detection cache entry.
func NewCache(detected, configured []string) *project.DetectionCache {
	return &project.DetectionCache{
		Timestamp:  time.Now().UTC(),
		Detected:   slices.Clone(detected),
		Configured: slices.Clone(configured),
	}
}
