// Package lockfile computes and persists the content-hash triple used to
// detect drift between syncs. Hashing runs over the canonical serialization
// from the ir package, so the triple is a pure, deterministic function of
// bundle content: unchanged inputs always reproduce byte-identical hashes.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/airule-dev/airule/internal/ir"
)

// FileName is the lockfile name inside the project directory.
const FileName = "airule.lock"

// Lockfile records the hash triple of one resolved sync.
type Lockfile struct {
	// BaseHash covers the unmodified base bundle.
	BaseHash string `json:"base_hash"`

	// OverlayHash covers the overlay rule set alone.
	OverlayHash string `json:"overlay_hash"`

	// ResultHash covers the fully merged, overlay-applied bundle.
	ResultHash string `json:"result_hash"`

	// GeneratedAt is informational only and never participates in hashing.
	GeneratedAt time.Time `json:"generated_at"`
}

// Compute derives the lockfile triple from the base bundle, the overlay
// sections, and the merged result. Calling it twice on unchanged inputs
// yields identical triples.
func Compute(base *ir.Bundle, overlay []ir.Section, merged *ir.Bundle) (*Lockfile, error) {
	baseHash, err := base.Hash()
	if err != nil {
		return nil, fmt.Errorf("hashing base bundle: %w", err)
	}
	overlayHash, err := ir.HashSections(overlay)
	if err != nil {
		return nil, fmt.Errorf("hashing overlay: %w", err)
	}
	resultHash, err := merged.Hash()
	if err != nil {
		return nil, fmt.Errorf("hashing merged bundle: %w", err)
	}
	return &Lockfile{
		BaseHash:    baseHash,
		OverlayHash: overlayHash,
		ResultHash:  resultHash,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Drift classifies how a new lockfile differs from a previous one.
type Drift string

const (
	// DriftNone means the triples match.
	DriftNone Drift = "none"

	// DriftBase means the upstream/base content changed.
	DriftBase Drift = "base"

	// DriftOverlay means only the overlay rules changed.
	DriftOverlay Drift = "overlay"

	// DriftInconsistent means the result hash changed while base and
	// overlay both match. Correct hashing cannot produce this; it
	// indicates a bug or a hand-edited lockfile.
	DriftInconsistent Drift = "inconsistent"
)

// Classify compares an old lockfile against a newly computed one. A nil
// old lockfile (first sync) classifies as DriftNone.
func Classify(old, cur *Lockfile) Drift {
	if old == nil {
		return DriftNone
	}
	if old.BaseHash != cur.BaseHash {
		return DriftBase
	}
	if old.OverlayHash != cur.OverlayHash {
		return DriftOverlay
	}
	if old.ResultHash != cur.ResultHash {
		return DriftInconsistent
	}
	return DriftNone
}

// Load reads a lockfile. Returns nil, nil when the file does not exist
// (first sync).
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}
	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing lockfile %s: %w", path, err)
	}
	return &lf, nil
}

// Save writes the lockfile, overwriting any previous one.
func (l *Lockfile) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating lockfile directory: %w", err)
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling lockfile: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", path, err)
	}
	return nil
}
