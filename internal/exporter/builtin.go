package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airule-dev/airule/internal/branding"
	"github.com/airule-dev/airule/internal/ir"
)

// markdownAdapter covers the whole family of agents whose config is a
// single markdown file. The differences between them are the output path
// and an optional frontmatter block (cursor's .mdc).
type markdownAdapter struct {
	output      string
	frontmatter func(b *ir.Bundle) string
	importable  bool
}

// generatedNotice is prepended to every exported file. It lives in the
// preamble, which importers skip, so round-tripping never duplicates it.
func generatedNotice() string {
	return fmt.Sprintf("<!-- Generated by %s from the canonical rule document. Direct edits are synced back on the next '%s sync'. -->",
		branding.CLIName(), branding.CLIName())
}

func (a *markdownAdapter) Export(bundle *ir.Bundle, targetDir string) (*ExportResult, error) {
	expanded := bundle.ExpandPlugs()

	var sb strings.Builder
	if a.frontmatter != nil {
		sb.WriteString(a.frontmatter(expanded))
	}
	sb.WriteString(generatedNotice())
	sb.WriteString("\n\n# ")
	sb.WriteString(titleFor(expanded))
	sb.WriteString("\n")
	sb.WriteString(ir.RenderSections(expanded.Sections))

	outPath := filepath.Join(targetDir, filepath.FromSlash(a.output))
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, fmt.Errorf("creating output directory for %s: %w", a.output, err)
	}
	if err := os.WriteFile(outPath, []byte(sb.String()), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", a.output, err)
	}
	return &ExportResult{Written: []string{a.output}}, nil
}

func (a *markdownAdapter) Import(path string) ([]ir.Section, error) {
	if !a.importable {
		return nil, fmt.Errorf("adapter output %s does not support import", a.output)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	body := string(data)
	if a.frontmatter != nil {
		body = stripFrontmatter(body)
	}
	return ir.ParseSections(body), nil
}

func titleFor(b *ir.Bundle) string {
	if b.ID == "" {
		return "Agent Rules"
	}
	return b.ID
}

// stripFrontmatter removes a leading "---" delimited YAML block.
func stripFrontmatter(body string) string {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return body
	}
	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return body
	}
	after := rest[end+len("\n---"):]
	return strings.TrimPrefix(after, "\n")
}

// cursorFrontmatter emits the MDC metadata block Cursor expects.
func cursorFrontmatter(b *ir.Bundle) string {
	description := "Project rules"
	if b.ID != "" {
		description = "Rules for " + b.ID
	}
	return fmt.Sprintf("---\ndescription: %s\nalwaysApply: true\n---\n", description)
}

// builtinHandlers maps "builtin:<name>" handler references to compiled-in
// adapters. The registry layers discovered manifests on top of these.
var builtinHandlers = map[string]Handler{
	"agents-md": &markdownAdapter{output: "AGENTS.md", importable: true},
	"claude":    &markdownAdapter{output: "CLAUDE.md", importable: true},
	"copilot":   &markdownAdapter{output: ".github/copilot-instructions.md", importable: true},
	"cursor":    &markdownAdapter{output: ".cursor/rules/airule.mdc", frontmatter: cursorFrontmatter, importable: true},
	"windsurf":  &markdownAdapter{output: ".windsurf/rules/airule.md"},
}

// builtinManifests declares the builtin adapter set in registration order.
func builtinManifests() []Manifest {
	return []Manifest{
		{Name: "agents-md", Version: "1.0.0", Outputs: []string{"AGENTS.md"}, Handler: "builtin:agents-md", Import: true},
		{Name: "claude", Version: "1.0.0", Outputs: []string{"CLAUDE.md"}, Handler: "builtin:claude", Import: true},
		{Name: "copilot", Version: "1.0.0", Outputs: []string{".github/copilot-instructions.md"}, Handler: "builtin:copilot", Import: true},
		{Name: "cursor", Version: "1.0.0", Outputs: []string{".cursor/rules/airule.mdc"}, Handler: "builtin:cursor", Import: true},
		{Name: "windsurf", Version: "1.0.0", Outputs: []string{".windsurf/rules/airule.md"}, Handler: "builtin:windsurf"},
	}
}
