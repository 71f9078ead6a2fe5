package main

import (
	"os"
	"path/filepath"
	"strings"
)

func Export(bundle map[string]interface{}, targetDir string) (map[string]interface{}, error) {
	var lines []string
	lines = append(lines, "# "+bundle["id"].(string))
	sections := bundle["sections"].([]map[string]interface{})
	for _, s := range sections {
		lines = append(lines, "")
		lines = append(lines, "* "+s["heading"].(string))
		lines = append(lines, s["content"].(string))
	}
	out := filepath.Join(targetDir, "custom-rules.txt")
	if err := os.WriteFile(out, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"written": []string{"custom-rules.txt"},
	}, nil
}

func Import(path string) ([]map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sections []map[string]interface{}
	var current map[string]interface{}
	var body []string
	flush := func() {
		if current != nil {
			current["content"] = strings.TrimSpace(strings.Join(body, "\n"))
			sections = append(sections, current)
		}
		body = nil
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "* ") {
			flush()
			current = map[string]interface{}{"heading": strings.TrimPrefix(line, "* ")}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return sections, nil
}
