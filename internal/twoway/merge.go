package twoway

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/airule-dev/airule/internal/ir"
	"github.com/airule-dev/airule/internal/syncerr"
)

// FileRef identifies one file participating in a conflict.
type FileRef struct {
	Path  string
	Mtime time.Time
}

// DiscardedEdit keeps the losing content of a conflict for audit.
type DiscardedEdit struct {
	Path    string
	Content string
}

// Conflict records two or more files editing the same section.
type Conflict struct {
	Heading     string
	Fingerprint string
	Files       []FileRef
	Winner      string
	Discarded   []DiscardedEdit
}

// Decision is a Resolver's verdict: the path of the winning file.
type Decision struct {
	WinnerPath string
}

// Resolver decides conflicts. The engine default is LatestMtime; an
// interactive implementation may replace it at the outermost layer only.
type Resolver interface {
	Resolve(c Conflict) Decision
}

// LatestMtime picks the file with the newest modification time,
// tie-breaking on path order so the outcome is fully deterministic.
type LatestMtime struct{}

func (LatestMtime) Resolve(c Conflict) Decision {
	winner := c.Files[0]
	for _, f := range c.Files[1:] {
		if f.Mtime.After(winner.Mtime) || (f.Mtime.Equal(winner.Mtime) && f.Path > winner.Path) {
			winner = f
		}
	}
	return Decision{WinnerPath: winner.Path}
}

// Result is the outcome of merging agent-file edits into the IR.
type Result struct {
	// Bundle is the updated IR (a copy; the input is never mutated).
	Bundle *ir.Bundle

	// Changed reports whether any edit was applied.
	Changed bool

	Conflicts []Conflict
	Warnings  []string
}

// sectionEdit is one file's proposed change to one section.
type sectionEdit struct {
	file    FileEdit
	heading string
	content string
	level   int
	// fingerprint of the IR section being edited; empty for new sections.
	fingerprint string
}

// MergeEdits parses each edited file with its adapter's importer and folds
// the changes into a copy of the bundle. Exactly one file editing a
// section merges directly; competing edits to the same section go through
// the resolver, the losers' content is kept on the conflict record, and
// the winner lands in the IR. Files that cannot be parsed, or whose
// adapter is export-only, are skipped with a warning.
func MergeEdits(projectPath string, bundle *ir.Bundle, edits []FileEdit, resolver Resolver) *Result {
	if resolver == nil {
		resolver = LatestMtime{}
	}
	res := &Result{Bundle: bundle.Clone()}

	// Collect proposals per section, keyed by the IR fingerprint (or the
	// normalized heading for sections new to the IR).
	proposals := make(map[string][]sectionEdit)
	var order []string

	for _, edit := range edits {
		if edit.Adapter == nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s is tracked but no adapter owns it, skipping", edit.Path))
			continue
		}
		importer := edit.Adapter.Importer()
		if importer == nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s was edited but adapter %q is export-only, changes will be overwritten", edit.Path, edit.Adapter.Manifest.Name))
			continue
		}

		sections, err := importer.Import(filepath.Join(projectPath, filepath.FromSlash(edit.Path)))
		if err != nil {
			warn := syncerr.Wrap(syncerr.CodeParseFailed, err, "parsing edits in %s", edit.Path)
			res.Warnings = append(res.Warnings, warn.Error())
			continue
		}

		for _, s := range sections {
			key, proposal := classify(res.Bundle, edit, s)
			if proposal == nil {
				continue // content unchanged
			}
			if _, seen := proposals[key]; !seen {
				order = append(order, key)
			}
			proposals[key] = append(proposals[key], *proposal)
		}
	}

	for _, key := range order {
		group := proposals[key]
		if len(group) == 1 {
			apply(res.Bundle, group[0])
			res.Changed = true
			continue
		}
		res.Conflicts = append(res.Conflicts, resolveGroup(res.Bundle, group, resolver))
		res.Changed = true
	}

	if res.Changed {
		res.Bundle.Refingerprint()
	}
	return res
}

// classify matches a parsed section against the IR by heading. It returns
// nil when the section's content already matches the IR (not an edit).
func classify(bundle *ir.Bundle, edit FileEdit, s ir.Section) (string, *sectionEdit) {
	proposal := &sectionEdit{
		file:    edit,
		heading: s.Heading,
		content: s.Content,
		level:   s.Level,
	}
	idx := bundle.SectionByHeading(s.Heading)
	if idx < 0 {
		return "new:" + ir.Fingerprint(s.Heading, ""), proposal
	}
	existing := bundle.Sections[idx]
	if existing.Fingerprint == ir.Fingerprint(existing.Heading, s.Content) {
		return "", nil
	}
	proposal.fingerprint = existing.Fingerprint
	return existing.Fingerprint, proposal
}

func apply(bundle *ir.Bundle, edit sectionEdit) {
	if edit.fingerprint != "" {
		if idx := bundle.SectionByFingerprint(edit.fingerprint); idx >= 0 {
			bundle.Sections[idx].Content = edit.content
			return
		}
	}
	bundle.Sections = append(bundle.Sections, ir.Section{
		Heading: edit.heading,
		Content: edit.content,
		Level:   defaultLevel(edit.level),
	})
}

func resolveGroup(bundle *ir.Bundle, group []sectionEdit, resolver Resolver) Conflict {
	conflict := Conflict{
		Heading:     group[0].heading,
		Fingerprint: group[0].fingerprint,
	}
	sort.Slice(group, func(i, j int) bool { return group[i].file.Path < group[j].file.Path })
	for _, e := range group {
		conflict.Files = append(conflict.Files, FileRef{Path: e.file.Path, Mtime: e.file.Mtime})
	}

	decision := resolver.Resolve(conflict)
	conflict.Winner = decision.WinnerPath

	for _, e := range group {
		if e.file.Path == decision.WinnerPath {
			apply(bundle, e)
		} else {
			conflict.Discarded = append(conflict.Discarded, DiscardedEdit{Path: e.file.Path, Content: e.content})
		}
	}
	return conflict
}

func defaultLevel(level int) int {
	if level < 1 || level > 6 {
		return 2
	}
	return level
}
