package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/airule-dev/airule/internal/lockfile"
	"github.com/airule-dev/airule/internal/source"
	"github.com/airule-dev/airule/internal/twoway"
)

// Phase names the states of the sync state machine.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseSourcesResolved Phase = "sources-resolved"
	PhaseEditsDetected   Phase = "edits-detected"
	PhaseMerged          Phase = "merged"
	PhaseValidated       Phase = "validated"
	PhaseGated           Phase = "gated"
	PhaseExported        Phase = "exported"
	PhasePersisted       Phase = "persisted"
)

// AuditEntry is one step in the sync audit trail.
type AuditEntry struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Action     string    `json:"action"`
	Target     string    `json:"target,omitempty"`
	Details    string    `json:"details,omitempty"`
	Provenance string    `json:"provenance,omitempty"`
}

// SyncResult is the per-invocation outcome. It is created fresh by Run and
// discarded at process exit; nothing in it is persisted except through the
// lockfile and state files.
type SyncResult struct {
	Success bool

	// Phase is the last state the machine reached.
	Phase Phase

	// Drift classifies the new lockfile against the previous one.
	Drift lockfile.Drift

	// ResultHash is the computed result hash, when the run got that far.
	ResultHash string

	// Written lists project-relative paths written (or, on dry runs, the
	// paths that would have been written).
	Written []string

	Warnings []string

	// Conflicts are competing agent-file edits from the two-way step.
	Conflicts []twoway.Conflict

	// SourceConflicts are sections written by more than one source.
	SourceConflicts []source.Conflict

	AuditTrail []AuditEntry
}

func (r *SyncResult) audit(action, target, details, provenance string) {
	r.AuditTrail = append(r.AuditTrail, AuditEntry{
		ID:         uuid.NewString(),
		At:         time.Now().UTC(),
		Action:     action,
		Target:     target,
		Details:    details,
		Provenance: provenance,
	})
}

func (r *SyncResult) warn(msgs ...string) {
	r.Warnings = append(r.Warnings, msgs...)
}

func (r *SyncResult) enter(phase Phase) {
	r.Phase = phase
	r.audit("phase", string(phase), "", "")
}
