package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/airule-dev/airule/internal/syncerr"
)

func TestDescriptorIdentity(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
		want string
	}{
		{"local path", Descriptor{Type: TypeLocal, Path: "/p/rules.md"}, "/p/rules.md"},
		{"git with ref", Descriptor{Type: TypeGit, URL: "https://x.test/r.git", Ref: "main"}, "https://x.test/r.git@main"},
		{"git without ref", Descriptor{Type: TypeGit, URL: "https://x.test/r.git"}, "https://x.test/r.git"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.Identity(); got != tt.want {
				t.Errorf("Identity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		wantErr bool
	}{
		{"valid local", Descriptor{Type: TypeLocal, Path: "rules.md"}, false},
		{"valid git", Descriptor{Type: TypeGit, URL: "https://x.test/r.git"}, false},
		{"local without path", Descriptor{Type: TypeLocal}, true},
		{"git without url", Descriptor{Type: TypeGit}, true},
		{"unknown type", Descriptor{Type: "ftp", Path: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "airule-pack.yaml"), "name: team/pack\nversion: 1.0.0\nrules: docs/rules.md\n")
	writeFile(t, filepath.Join(dir, "docs", "rules.md"), "## Testing\n\nbody\n")

	bundle, err := LoadFromDir(dir, "fallback")
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}
	if bundle.ID != "team/pack" {
		t.Errorf("ID = %q, want team/pack", bundle.ID)
	}
	if len(bundle.Sections) != 1 || bundle.Sections[0].Heading != "Testing" {
		t.Errorf("sections = %+v", bundle.Sections)
	}
}

func TestLoadFromDirNoManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rules.md"), "## A\n\na\n")

	_, err := LoadFromDir(dir, "f")
	if !syncerr.Is(err, syncerr.CodeManifestNotFound) {
		t.Errorf("error = %v, want code %s", err, syncerr.CodeManifestNotFound)
	}
}

func TestLoadFromDirManifestWithoutRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pack.yaml"), "name: p\n")

	if _, err := LoadFromDir(dir, "f"); err == nil {
		t.Error("manifest without rules path accepted")
	}
}

func TestLoadPlainFromDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "AGENTS.md"), "## A\n\na\n")

	bundle, err := LoadPlainFromDir(dir, "fallback-id")
	if err != nil {
		t.Fatalf("LoadPlainFromDir: %v", err)
	}
	if bundle.ID != "fallback-id" {
		t.Errorf("ID = %q, want fallback-id", bundle.ID)
	}
}

func TestLoadPlainFromDirPrefersRulesMD(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rules.md"), "## From Rules\n\nr\n")
	writeFile(t, filepath.Join(dir, "AGENTS.md"), "## From Agents\n\na\n")

	bundle, err := LoadPlainFromDir(dir, "f")
	if err != nil {
		t.Fatalf("LoadPlainFromDir: %v", err)
	}
	if bundle.Sections[0].Heading != "From Rules" {
		t.Errorf("heading = %q, rules.md should win over AGENTS.md", bundle.Sections[0].Heading)
	}
}

func TestLoadPlainFromDirEmpty(t *testing.T) {
	if _, err := LoadPlainFromDir(t.TempDir(), "f"); err == nil {
		t.Error("empty directory accepted")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
