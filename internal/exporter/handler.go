package exporter

import (
	"github.com/airule-dev/airule/internal/ir"
)

// ContractVersion is the version of the handler contract this registry
// implements. Exporter manifests declare a semver constraint against it.
const ContractVersion = "1.0.0"

// ExportResult reports what an adapter wrote.
type ExportResult struct {
	Written  []string
	Warnings []string
}

// Handler is the capability every adapter must provide: render the bundle
// into the agent's native files under targetDir.
type Handler interface {
	Export(bundle *ir.Bundle, targetDir string) (*ExportResult, error)
}

// Importer is the optional round-trip capability: parse an agent file back
// into rule sections. Adapters without it are export-only and their files
// are never pulled back during two-way sync.
type Importer interface {
	Import(path string) ([]ir.Section, error)
}
