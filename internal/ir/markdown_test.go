package ir

import (
	"strings"
	"testing"
)

const sampleDoc = `---
id: proj/rules
version: 1.2.0
---

# Project Rules

Preamble text that belongs to no section.

## Testing

Run the full suite before pushing.

## Style

- Match existing code.
- No drive-by refactors.

### Naming

Short names for short scopes.
`

func TestParseDocument(t *testing.T) {
	bundle, err := ParseDocument([]byte(sampleDoc), "fallback")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	if bundle.ID != "proj/rules" {
		t.Errorf("ID = %q, want proj/rules", bundle.ID)
	}
	if bundle.Version != "1.2.0" {
		t.Errorf("Version = %q, want 1.2.0", bundle.Version)
	}
	if len(bundle.Sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(bundle.Sections))
	}

	headings := []string{"Testing", "Style", "Naming"}
	for i, want := range headings {
		if bundle.Sections[i].Heading != want {
			t.Errorf("section[%d].Heading = %q, want %q", i, bundle.Sections[i].Heading, want)
		}
		if bundle.Sections[i].Fingerprint == "" {
			t.Errorf("section[%d] has no fingerprint", i)
		}
	}
	if bundle.Sections[2].Level != 3 {
		t.Errorf("Naming level = %d, want 3", bundle.Sections[2].Level)
	}
	if got := bundle.Sections[0].Content; got != "Run the full suite before pushing." {
		t.Errorf("Testing content = %q", got)
	}
}

func TestParseDocumentNoFrontmatter(t *testing.T) {
	bundle, err := ParseDocument([]byte("## Only Section\n\nbody\n"), "fallback-id")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if bundle.ID != "fallback-id" {
		t.Errorf("ID = %q, want fallback-id", bundle.ID)
	}
	if len(bundle.Sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(bundle.Sections))
	}
}

func TestParseDocumentUnterminatedFrontmatter(t *testing.T) {
	if _, err := ParseDocument([]byte("---\nid: x\nno terminator"), "f"); err == nil {
		t.Error("expected error for unterminated frontmatter")
	}
}

func TestParseDocumentPlugs(t *testing.T) {
	doc := `---
id: proj/rules
plugs:
  slots:
    lang:
      description: Primary language
      default: go
      required: true
  fills:
    lang: rust
---

## Build

Use {{lang}} toolchain.
`
	bundle, err := ParseDocument([]byte(doc), "f")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if bundle.Plugs == nil {
		t.Fatal("Plugs is nil")
	}
	slot, ok := bundle.Plugs.Slots["lang"]
	if !ok {
		t.Fatal("slot lang missing")
	}
	if slot.Default != "go" || !slot.Required {
		t.Errorf("slot = %+v, want default go, required", slot)
	}
	if bundle.Plugs.Fills["lang"] != "rust" {
		t.Errorf("fill = %q, want rust", bundle.Plugs.Fills["lang"])
	}

	expanded := bundle.ExpandPlugs()
	if got := expanded.Sections[0].Content; got != "Use rust toolchain." {
		t.Errorf("expanded content = %q", got)
	}
	// The original keeps its placeholder.
	if got := bundle.Sections[0].Content; got != "Use {{lang}} toolchain." {
		t.Errorf("original content mutated: %q", got)
	}
}

func TestParseSectionsCodeFence(t *testing.T) {
	body := "## Examples\n\n```md\n## Not A Heading\n```\n\n## Real\n\nbody\n"
	sections := ParseSections(body)
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2 (fenced heading must not split)", len(sections))
	}
	if sections[0].Heading != "Examples" || sections[1].Heading != "Real" {
		t.Errorf("headings = %q, %q", sections[0].Heading, sections[1].Heading)
	}
	if !strings.Contains(sections[0].Content, "## Not A Heading") {
		t.Errorf("fenced content lost: %q", sections[0].Content)
	}
}

func TestParseSectionsNormalizesSeparatorLines(t *testing.T) {
	want := Fingerprint("Testing", "Run tests.")
	bodies := []string{
		"## Testing\nRun tests.",
		"## Testing\n\nRun tests.\n",
		"## Testing\n\n\nRun tests.\n\n\n",
	}
	for _, body := range bodies {
		sections := ParseSections(body)
		if len(sections) != 1 {
			t.Fatalf("ParseSections(%q) = %d sections, want 1", body, len(sections))
		}
		if got := sections[0].Content; got != "Run tests." {
			t.Errorf("ParseSections(%q) content = %q, want %q", body, got, "Run tests.")
		}
		// The parsed form must hash like the same section built in memory,
		// or round trips through a rendered document change fingerprints.
		if sections[0].Fingerprint != want {
			t.Errorf("ParseSections(%q) fingerprint = %q, want %q", body, sections[0].Fingerprint, want)
		}
	}
}

func TestParseSectionsIgnoresTopLevelHeading(t *testing.T) {
	sections := ParseSections("# Title\n\nintro\n\n## First\n\nbody\n")
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Heading != "First" {
		t.Errorf("heading = %q, want First", sections[0].Heading)
	}
}

func TestParseHeading(t *testing.T) {
	tests := []struct {
		line    string
		level   int
		heading string
		ok      bool
	}{
		{"## Testing", 2, "Testing", true},
		{"### Deep ", 3, "Deep", true},
		{"####### Too Deep", 0, "", false},
		{"##NoSpace", 0, "", false},
		{"plain text", 0, "", false},
		{"#", 0, "", false},
	}

	for _, tt := range tests {
		level, heading, ok := parseHeading(tt.line)
		if level != tt.level || heading != tt.heading || ok != tt.ok {
			t.Errorf("parseHeading(%q) = (%d, %q, %v), want (%d, %q, %v)",
				tt.line, level, heading, ok, tt.level, tt.heading, tt.ok)
		}
	}
}

func TestRenderDocumentRoundTrip(t *testing.T) {
	original, err := ParseDocument([]byte(sampleDoc), "f")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	rendered, err := RenderDocument(original)
	if err != nil {
		t.Fatalf("RenderDocument: %v", err)
	}
	reparsed, err := ParseDocument(rendered, "f")
	if err != nil {
		t.Fatalf("reparsing rendered document: %v", err)
	}

	h1, err := original.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := reparsed.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("round trip changed content hash: %s vs %s", h1, h2)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Bundle {
		return &Bundle{
			ID:      "p",
			Version: "1.0.0",
			Sections: []Section{
				{Heading: "A", Content: "a", Level: 2, Fingerprint: "fa"},
			},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid bundle rejected: %v", err)
	}

	b := valid()
	b.ID = "  "
	if err := b.Validate(); err == nil {
		t.Error("blank id accepted")
	}

	b = valid()
	b.Version = "not-semver"
	if err := b.Validate(); err == nil {
		t.Error("bad semver accepted")
	}

	b = valid()
	b.Sections = append(b.Sections, Section{Heading: "B", Content: "b", Fingerprint: "fa"})
	if err := b.Validate(); err == nil {
		t.Error("duplicate fingerprint accepted")
	}

	b = valid()
	b.Sections[0].Fingerprint = ""
	if err := b.Validate(); err == nil {
		t.Error("missing fingerprint accepted")
	}

	b = valid()
	b.Plugs = &Plugs{Slots: map[string]SlotSpec{"lang": {Required: true}}}
	if err := b.Validate(); err == nil {
		t.Error("required slot without fill or default accepted")
	}

	b = valid()
	b.Plugs = &Plugs{
		Slots: map[string]SlotSpec{},
		Fills: map[string]string{"ghost": "x"},
	}
	if err := b.Validate(); err == nil {
		t.Error("fill without declared slot accepted")
	}
}

func TestRefingerprint(t *testing.T) {
	b := &Bundle{ID: "p", Sections: []Section{{Heading: "A", Content: "old", Level: 2}}}
	b.Refingerprint()
	before := b.Sections[0].Fingerprint
	if before == "" {
		t.Fatal("Refingerprint left an empty fingerprint")
	}

	b.Sections[0].Content = "new"
	b.Refingerprint()
	if b.Sections[0].Fingerprint == before {
		t.Error("fingerprint unchanged after content edit")
	}
}
