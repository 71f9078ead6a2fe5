package exporter

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/airule-dev/airule/internal/ir"
)

// Interpreted handler entry points. The exchange types are deliberately
// plain (maps, strings) so handler files need no imports beyond the stdlib:
//
//	func Export(bundle map[string]any, targetDir string) (map[string]any, error)
//	func Import(path string) ([]map[string]any, error)   // optional
//
// Export receives {"id", "version", "sections": [{"heading", "content",
// "level"}], "fills": map[string]string} and returns {"written": []string,
// "warnings": []string}. Import returns section maps with "heading",
// "content" and optional "level".
const (
	exportFuncName = "Export"
	importFuncName = "Import"
)

// goHandler adapts an interpreted Go file to the Handler contract.
type goHandler struct {
	path     string
	exportFn reflect.Value
	importFn reflect.Value
}

// loadGoHandler interprets the handler file and binds its entry points.
func loadGoHandler(path string) (Handler, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading handler %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("handler %s is empty", path)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("preparing interpreter for %s: %w", path, err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("interpreting handler %s: %w", path, err)
	}

	exportFn, err := i.Eval(exportFuncName)
	if err != nil || exportFn.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler %s must define %s(bundle map[string]any, targetDir string) (map[string]any, error)", path, exportFuncName)
	}

	h := &goHandler{path: path, exportFn: exportFn}
	if importFn, err := i.Eval(importFuncName); err == nil && importFn.Kind() == reflect.Func {
		h.importFn = importFn
	}
	return h, nil
}

func (h *goHandler) Export(bundle *ir.Bundle, targetDir string) (*ExportResult, error) {
	expanded := bundle.ExpandPlugs()

	sections := make([]map[string]any, len(expanded.Sections))
	for i, s := range expanded.Sections {
		sections[i] = map[string]any{
			"heading": s.Heading,
			"content": s.Content,
			"level":   s.Level,
		}
	}
	fills := map[string]string{}
	if expanded.Plugs != nil {
		for k, v := range expanded.Plugs.Fills {
			fills[k] = v
		}
	}
	input := map[string]any{
		"id":       expanded.ID,
		"version":  expanded.Version,
		"sections": sections,
		"fills":    fills,
	}

	results := h.exportFn.Call([]reflect.Value{reflect.ValueOf(input), reflect.ValueOf(targetDir)})
	out, err := splitResults(results, h.path, exportFuncName)
	if err != nil {
		return nil, err
	}

	resultMap, ok := out.Interface().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("handler %s: %s must return map[string]any", h.path, exportFuncName)
	}
	return &ExportResult{
		Written:  stringSlice(resultMap["written"]),
		Warnings: stringSlice(resultMap["warnings"]),
	}, nil
}

func (h *goHandler) Import(path string) ([]ir.Section, error) {
	if !h.importFn.IsValid() {
		return nil, fmt.Errorf("handler %s does not define %s", h.path, importFuncName)
	}

	results := h.importFn.Call([]reflect.Value{reflect.ValueOf(path)})
	out, err := splitResults(results, h.path, importFuncName)
	if err != nil {
		return nil, err
	}

	raw := out.Interface()
	items, ok := toMapSlice(raw)
	if !ok {
		return nil, fmt.Errorf("handler %s: %s must return []map[string]any", h.path, importFuncName)
	}

	sections := make([]ir.Section, 0, len(items))
	for _, item := range items {
		heading, _ := item["heading"].(string)
		content, _ := item["content"].(string)
		level := 2
		if l, ok := item["level"].(int); ok && l > 0 {
			level = l
		}
		sections = append(sections, ir.Section{
			Heading:     heading,
			Content:     content,
			Level:       level,
			Fingerprint: ir.Fingerprint(heading, content),
		})
	}
	return sections, nil
}

// splitResults validates a (value, error) return pair from an interpreted
// function call.
func splitResults(results []reflect.Value, path, fn string) (reflect.Value, error) {
	if len(results) == 0 || len(results) > 2 {
		return reflect.Value{}, fmt.Errorf("handler %s: %s must return (value, error)", path, fn)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok {
			return reflect.Value{}, fmt.Errorf("handler %s: %w", path, e)
		}
		return reflect.Value{}, fmt.Errorf("handler %s: %s returned a non-error second value", path, fn)
	}
	return results[0], nil
}

func stringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toMapSlice(v any) ([]map[string]any, bool) {
	switch val := v.(type) {
	case []map[string]any:
		return val, true
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	default:
		return nil, false
	}
}
