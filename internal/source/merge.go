package source

import (
	"strings"

	"github.com/airule-dev/airule/internal/ir"
)

// Conflict records a section written by more than one source during merge.
// Sources are listed in write order; the last one won.
type Conflict struct {
	Fingerprint string
	Heading     string
	Sources     []string
}

// Merge applies overlay bundles onto the base (bundles[0]) last-write-wins
// per section. Sections are matched across sources by normalized heading:
// a fingerprint covers content, so an overlay that edits a section
// necessarily carries a new fingerprint, and the heading is the identity
// that survives the edit. identities parallel bundles and label conflict
// entries.
//
// Sections with no overlap append in source order, so a merge of disjoint
// sources has no conflicts and the sum of the section counts.
func Merge(bundles []*ir.Bundle, identities []string) (*ir.Bundle, []Conflict) {
	result := bundles[0].Clone()

	// writers tracks which sources wrote each heading, in order. A base may
	// legitimately repeat a heading; only the first occurrence seeds the
	// bookkeeping, matching SectionByHeading's first-match overwrite.
	writers := make(map[string][]string, len(result.Sections))
	order := make([]string, 0, len(result.Sections))
	for _, s := range result.Sections {
		key := headingKey(s.Heading)
		if _, seen := writers[key]; seen {
			continue
		}
		writers[key] = []string{identities[0]}
		order = append(order, key)
	}

	for i, overlay := range bundles[1:] {
		identity := identities[i+1]
		for _, s := range overlay.Sections {
			key := headingKey(s.Heading)
			if idx := result.SectionByHeading(s.Heading); idx >= 0 {
				result.Sections[idx] = s
				writers[key] = append(writers[key], identity)
				continue
			}
			result.Sections = append(result.Sections, s)
			writers[key] = []string{identity}
			order = append(order, key)
		}
		mergePlugs(result, overlay)
	}

	var conflicts []Conflict
	for _, key := range order {
		srcs := writers[key]
		if len(srcs) < 2 {
			continue
		}
		idx := result.SectionByHeading(key)
		conflicts = append(conflicts, Conflict{
			Fingerprint: result.Sections[idx].Fingerprint,
			Heading:     result.Sections[idx].Heading,
			Sources:     srcs,
		})
	}
	return result, conflicts
}

// mergePlugs overlays slot declarations and fills onto the result. Overlay
// fills win over base fills.
func mergePlugs(result, overlay *ir.Bundle) {
	if overlay.Plugs == nil {
		return
	}
	if result.Plugs == nil {
		result.Plugs = &ir.Plugs{
			Slots: make(map[string]ir.SlotSpec),
			Fills: make(map[string]string),
		}
	}
	for name, spec := range overlay.Plugs.Slots {
		result.Plugs.Slots[name] = spec
	}
	for name, value := range overlay.Plugs.Fills {
		result.Plugs.Fills[name] = value
	}
}

func headingKey(heading string) string {
	return strings.ToLower(strings.TrimSpace(heading))
}
