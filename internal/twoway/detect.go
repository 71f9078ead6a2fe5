package twoway

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/airule-dev/airule/internal/exporter"
)

// FileEdit is one tracked agent file modified since the last sync.
type FileEdit struct {
	// Path is the project-relative output path.
	Path string

	// Mtime is the file's current modification time.
	Mtime time.Time

	// Adapter is the adapter that owns the output path.
	Adapter *exporter.Adapter
}

// DetectEdits compares every tracked output path against the mtime
// recorded at the end of the previous sync. Files that no longer exist are
// simply dropped from consideration; a deleted export is regenerated by
// the next export step, not treated as an edit.
func DetectEdits(projectPath string, tracked map[string]time.Time, owners map[string]*exporter.Adapter) []FileEdit {
	var edits []FileEdit
	for relPath, lastSync := range tracked {
		info, err := os.Stat(filepath.Join(projectPath, filepath.FromSlash(relPath)))
		if err != nil {
			continue
		}
		if !info.ModTime().After(lastSync) {
			continue
		}
		edits = append(edits, FileEdit{
			Path:    relPath,
			Mtime:   info.ModTime(),
			Adapter: owners[relPath],
		})
	}
	// Stable order for deterministic merge and reporting.
	sort.Slice(edits, func(i, j int) bool { return edits[i].Path < edits[j].Path })
	return edits
}

// Owners maps each adapter output path to its adapter, for matching edited
// files back to the importer that can parse them.
func Owners(adapters []*exporter.Adapter) map[string]*exporter.Adapter {
	owners := make(map[string]*exporter.Adapter)
	for _, a := range adapters {
		for _, out := range a.Manifest.Outputs {
			owners[out] = a
		}
	}
	return owners
}
