package ir

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Bundle is the canonical, tool-agnostic rule document. Everything the
// exporters write and the two-way sync reads back flows through this type.
type Bundle struct {
	// ID identifies the rule set (e.g., "my-project/rules").
	ID string

	// Version is a semver string carried in the document frontmatter.
	Version string

	// Sections holds the ordered rule sections.
	Sections []Section

	// Plugs holds the optional parameterized slot declarations and fills.
	Plugs *Plugs
}

// Section is one rule block, identified across edits and formats by its
// fingerprint.
type Section struct {
	Heading     string
	Content     string
	Level       int
	Fingerprint string
}

// Plugs declares named placeholders that sections may reference as
// {{slot}} and the values that fill them at export time.
type Plugs struct {
	Slots map[string]SlotSpec
	Fills map[string]string
}

// SlotSpec describes one plug slot.
type SlotSpec struct {
	Description string
	Default     string
	Required    bool
}

// Clone returns a deep copy of the bundle. Merge and two-way sync mutate
// their working copy; callers keep the original for base hashing.
func (b *Bundle) Clone() *Bundle {
	clone := &Bundle{
		ID:       b.ID,
		Version:  b.Version,
		Sections: make([]Section, len(b.Sections)),
	}
	copy(clone.Sections, b.Sections)
	if b.Plugs != nil {
		clone.Plugs = &Plugs{
			Slots: make(map[string]SlotSpec, len(b.Plugs.Slots)),
			Fills: make(map[string]string, len(b.Plugs.Fills)),
		}
		for k, v := range b.Plugs.Slots {
			clone.Plugs.Slots[k] = v
		}
		for k, v := range b.Plugs.Fills {
			clone.Plugs.Fills[k] = v
		}
	}
	return clone
}

// SectionByHeading returns the index of the first section whose heading
// matches (case-insensitive, trimmed), or -1.
func (b *Bundle) SectionByHeading(heading string) int {
	want := normalizeHeading(heading)
	for i := range b.Sections {
		if normalizeHeading(b.Sections[i].Heading) == want {
			return i
		}
	}
	return -1
}

// SectionByFingerprint returns the index of the section with the given
// fingerprint, or -1.
func (b *Bundle) SectionByFingerprint(fp string) int {
	for i := range b.Sections {
		if b.Sections[i].Fingerprint == fp {
			return i
		}
	}
	return -1
}

func normalizeHeading(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Validate checks the bundle invariants: non-empty id, parseable semver
// version, fingerprint uniqueness, and plug slot/fill consistency.
func (b *Bundle) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("bundle id is required")
	}
	if b.Version != "" {
		if _, err := semver.NewVersion(b.Version); err != nil {
			return fmt.Errorf("bundle %s: version %q is not valid semver: %w", b.ID, b.Version, err)
		}
	}

	seen := make(map[string]string, len(b.Sections))
	for _, s := range b.Sections {
		if s.Fingerprint == "" {
			return fmt.Errorf("bundle %s: section %q has no fingerprint", b.ID, s.Heading)
		}
		if prev, dup := seen[s.Fingerprint]; dup {
			return fmt.Errorf("bundle %s: sections %q and %q share fingerprint %s", b.ID, prev, s.Heading, s.Fingerprint)
		}
		seen[s.Fingerprint] = s.Heading
	}

	if b.Plugs == nil {
		return nil
	}
	for name, spec := range b.Plugs.Slots {
		if !spec.Required {
			continue
		}
		if _, ok := b.Plugs.Fills[name]; !ok && spec.Default == "" {
			return fmt.Errorf("bundle %s: required plug slot %q has no fill and no default", b.ID, name)
		}
	}
	for name := range b.Plugs.Fills {
		if _, ok := b.Plugs.Slots[name]; !ok {
			return fmt.Errorf("bundle %s: fill %q does not match any declared slot", b.ID, name)
		}
	}
	return nil
}

// ExpandPlugs returns a copy of the bundle with every {{slot}} placeholder
// in section content replaced by its fill (or declared default). The
// canonical document keeps placeholders; only exported output is expanded.
func (b *Bundle) ExpandPlugs() *Bundle {
	if b.Plugs == nil || len(b.Plugs.Slots) == 0 {
		return b
	}
	expanded := b.Clone()
	pairs := make([]string, 0, 2*len(b.Plugs.Slots))
	for name, spec := range b.Plugs.Slots {
		value := spec.Default
		if fill, ok := b.Plugs.Fills[name]; ok {
			value = fill
		}
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	replacer := strings.NewReplacer(pairs...)
	for i := range expanded.Sections {
		expanded.Sections[i].Content = replacer.Replace(expanded.Sections[i].Content)
	}
	return expanded
}

// Refingerprint recomputes every section fingerprint from its current
// heading and content. Called after edits are merged back in.
func (b *Bundle) Refingerprint() {
	for i := range b.Sections {
		b.Sections[i].Fingerprint = Fingerprint(b.Sections[i].Heading, b.Sections[i].Content)
	}
}
