package ir

import (
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"
)

// frontmatter is the YAML block between "---" delimiters at the top of a
// canonical rule document.
type frontmatter struct {
	ID      string         `yaml:"id"`
	Version string         `yaml:"version,omitempty"`
	Plugs   *plugsDoc      `yaml:"plugs,omitempty"`
	Extra   map[string]any `yaml:",inline"`
}

type plugsDoc struct {
	Slots map[string]slotDoc `yaml:"slots,omitempty"`
	Fills map[string]string  `yaml:"fills,omitempty"`
}

type slotDoc struct {
	Description string `yaml:"description,omitempty"`
	Default     string `yaml:"default,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
}

// ParseDocument parses a canonical rule document: optional YAML frontmatter
// followed by markdown sections split on headings. fallbackID is used when
// the document carries no frontmatter (a plain rules file).
func ParseDocument(data []byte, fallbackID string) (*Bundle, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	bundle := &Bundle{ID: fallbackID}
	body := text

	if strings.HasPrefix(text, "---\n") {
		rest := text[len("---\n"):]
		end := strings.Index(rest, "\n---")
		if end < 0 {
			return nil, fmt.Errorf("unterminated frontmatter block")
		}
		var fm frontmatter
		if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
			return nil, fmt.Errorf("parsing frontmatter: %w", err)
		}
		if fm.ID != "" {
			bundle.ID = fm.ID
		}
		bundle.Version = fm.Version
		if fm.Plugs != nil {
			bundle.Plugs = &Plugs{
				Slots: make(map[string]SlotSpec, len(fm.Plugs.Slots)),
				Fills: make(map[string]string, len(fm.Plugs.Fills)),
			}
			for name, s := range fm.Plugs.Slots {
				bundle.Plugs.Slots[name] = SlotSpec(s)
			}
			for name, v := range fm.Plugs.Fills {
				bundle.Plugs.Fills[name] = v
			}
		}
		body = rest[end+len("\n---"):]
		body = strings.TrimPrefix(body, "\n")
	}

	bundle.Sections = ParseSections(body)
	return bundle, nil
}

// ParseSections splits markdown into sections, one per heading. Text before
// the first heading is ignored (it is the document preamble, owned by the
// frontmatter/title, not a rule section).
func ParseSections(body string) []Section {
	var sections []Section
	var current *Section
	var content []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.Trim(strings.Join(content, "\n"), "\n")
		current.Fingerprint = Fingerprint(current.Heading, current.Content)
		sections = append(sections, *current)
		current = nil
		content = nil
	}

	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if level, heading, ok := parseHeading(line); ok && !inFence && level >= 2 {
			flush()
			current = &Section{Heading: heading, Level: level}
			continue
		}
		if current != nil {
			content = append(content, line)
		}
	}
	flush()
	return sections
}

func parseHeading(line string) (level int, heading string, ok bool) {
	if !strings.HasPrefix(line, "#") {
		return 0, "", false
	}
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i > 6 || i >= len(line) || line[i] != ' ' {
		return 0, "", false
	}
	return i, strings.TrimSpace(line[i+1:]), true
}

// RenderDocument renders a bundle back to its canonical document form.
// Parsing the output yields an equivalent bundle (round-trip).
func RenderDocument(b *Bundle) ([]byte, error) {
	var sb strings.Builder

	fm := frontmatter{ID: b.ID, Version: b.Version}
	if b.Plugs != nil && (len(b.Plugs.Slots) > 0 || len(b.Plugs.Fills) > 0) {
		fm.Plugs = &plugsDoc{
			Slots: make(map[string]slotDoc, len(b.Plugs.Slots)),
			Fills: make(map[string]string, len(b.Plugs.Fills)),
		}
		for name, s := range b.Plugs.Slots {
			fm.Plugs.Slots[name] = slotDoc(s)
		}
		for name, v := range b.Plugs.Fills {
			fm.Plugs.Fills[name] = v
		}
	}
	meta, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}
	sb.WriteString("---\n")
	sb.Write(meta)
	sb.WriteString("---\n")

	sb.WriteString(RenderSections(b.Sections))
	return []byte(sb.String()), nil
}

// RenderSections renders sections as markdown headings and bodies.
func RenderSections(sections []Section) string {
	var sb strings.Builder
	for _, s := range sections {
		level := s.Level
		if level < 1 || level > 6 {
			level = 2
		}
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("#", level))
		sb.WriteString(" ")
		sb.WriteString(s.Heading)
		sb.WriteString("\n")
		if s.Content != "" {
			sb.WriteString("\n")
			sb.WriteString(s.Content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
