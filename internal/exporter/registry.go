package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airule-dev/airule/internal/syncerr"
)

// Adapter pairs a manifest with its bound handler.
type Adapter struct {
	Manifest Manifest
	Handler  Handler

	// Source is "builtin" or the manifest path the adapter was loaded from.
	Source string
}

// Importer returns the adapter's import capability, or nil when the
// manifest does not declare round-trip support or the handler lacks it.
func (a *Adapter) Importer() Importer {
	if !a.Manifest.Import {
		return nil
	}
	imp, ok := a.Handler.(Importer)
	if !ok {
		return nil
	}
	return imp
}

// Registry holds the discovered adapter set, keyed by manifest name.
type Registry struct {
	adapters map[string]*Adapter
	order    []string

	// Warnings collects non-fatal discovery problems (skipped manifests,
	// duplicate names).
	Warnings []string
}

// NewRegistry returns a registry pre-populated with the builtin adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]*Adapter)}
	for _, m := range builtinManifests() {
		r.Register(m, builtinHandlers[strings.TrimPrefix(m.Handler, "builtin:")], "builtin")
	}
	return r
}

// Register adds an adapter. Manifest names are unique within a registry;
// a duplicate name replaces the earlier registration with a warning.
func (r *Registry) Register(m Manifest, h Handler, source string) {
	if prev, dup := r.adapters[m.Name]; dup {
		r.Warnings = append(r.Warnings, fmt.Sprintf("adapter %q from %s replaces earlier registration from %s", m.Name, source, prev.Source))
	} else {
		r.order = append(r.order, m.Name)
	}
	r.adapters[m.Name] = &Adapter{Manifest: m, Handler: h, Source: source}
}

// DiscoverDir scans dir for manifest files and registers each one. A
// manifest whose handler cannot be loaded is skipped with a warning, never
// fatal: one broken adapter must not take down the sync. A missing
// directory is fine — the project simply has no custom adapters.
func (r *Registry) DiscoverDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scanning exporter directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := r.loadManifest(path); err != nil {
			r.Warnings = append(r.Warnings, fmt.Sprintf("skipping adapter manifest %s: %v", path, err))
		}
	}
	return nil
}

func (r *Registry) loadManifest(path string) error {
	m, err := ParseManifest(path)
	if err != nil {
		return err
	}
	if err := m.CheckContract(); err != nil {
		return err
	}

	handler, err := r.bindHandler(m, filepath.Dir(path))
	if err != nil {
		return err
	}
	r.Register(*m, handler, path)
	return nil
}

// bindHandler resolves the manifest's handler reference to a Handler.
func (r *Registry) bindHandler(m *Manifest, baseDir string) (Handler, error) {
	if name, ok := strings.CutPrefix(m.Handler, "builtin:"); ok {
		h, found := builtinHandlers[name]
		if !found {
			return nil, syncerr.New(syncerr.CodeExporterNotFound, "no builtin handler %q", name)
		}
		return h, nil
	}
	if strings.HasSuffix(m.Handler, ".go") {
		handlerPath := filepath.Join(baseDir, filepath.FromSlash(m.Handler))
		if _, err := os.Stat(handlerPath); err != nil {
			return nil, syncerr.New(syncerr.CodeExporterNotFound, "handler file %s does not exist", handlerPath)
		}
		return loadGoHandler(handlerPath)
	}
	return nil, syncerr.New(syncerr.CodeExporterNotFound, "unsupported handler reference %q (want builtin:<name> or a .go file)", m.Handler)
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (*Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered adapter names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select resolves the configured adapter names, collecting a warning per
// unknown name rather than failing the sync.
func (r *Registry) Select(names []string) ([]*Adapter, []string) {
	var adapters []*Adapter
	var warnings []string
	for _, name := range names {
		a, ok := r.adapters[name]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no adapter named %q is registered, skipping", name))
			continue
		}
		adapters = append(adapters, a)
	}
	return adapters, warnings
}
