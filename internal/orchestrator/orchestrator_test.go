package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/airule-dev/airule/internal/governance"
	"github.com/airule-dev/airule/internal/lockfile"
	"github.com/airule-dev/airule/internal/project"
	"github.com/airule-dev/airule/internal/source"
	"github.com/airule-dev/airule/internal/syncerr"
)

const testRules = `---
id: proj/rules
version: 1.0.0
---

## Testing

Run the full suite.

## Style

Match existing code.
`

func setupProject(t *testing.T, exporters []string) (string, *project.Config) {
	t.Helper()
	dir := t.TempDir()
	if err := project.Init(dir, exporters); err != nil {
		t.Fatal(err)
	}
	cfg, err := project.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.RulesPath(dir), []byte(testRules), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, cfg
}

func newRunner(dir string, cfg *project.Config) *Runner {
	return &Runner{
		ProjectPath: dir,
		Config:      cfg,
		Cache:       source.NewMemoryCache(),
	}
}

func TestRunHappyPath(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude", "cursor"})
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Success || res.Phase != PhasePersisted {
		t.Errorf("Success=%v Phase=%s", res.Success, res.Phase)
	}
	if res.Drift != lockfile.DriftNone {
		t.Errorf("first sync drift = %s, want none", res.Drift)
	}
	if !slices.Contains(res.Written, "CLAUDE.md") {
		t.Errorf("Written = %v", res.Written)
	}
	if _, err := os.Stat(filepath.Join(dir, "CLAUDE.md")); err != nil {
		t.Errorf("CLAUDE.md not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".cursor", "rules", "airule.mdc")); err != nil {
		t.Errorf("cursor output not written: %v", err)
	}

	lf, err := lockfile.Load(filepath.Join(project.Dir(dir), lockfile.FileName))
	if err != nil || lf == nil {
		t.Fatalf("lockfile not persisted: %v", err)
	}
	if lf.ResultHash != res.ResultHash {
		t.Errorf("lockfile hash %s != result hash %s", lf.ResultHash, res.ResultHash)
	}

	state, err := project.LoadState(dir)
	if err != nil {
		t.Fatal(err)
	}
	if state.LastSync.IsZero() {
		t.Error("LastSync not recorded")
	}
	if _, ok := state.Tracked["CLAUDE.md"]; !ok {
		t.Errorf("CLAUDE.md not tracked: %v", state.Tracked)
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{DryRun: true, AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Success {
		t.Error("dry run not successful")
	}
	if !slices.Contains(res.Written, "CLAUDE.md") {
		t.Errorf("Written = %v, dry run should report would-writes", res.Written)
	}
	if _, err := os.Stat(filepath.Join(dir, "CLAUDE.md")); !os.IsNotExist(err) {
		t.Error("dry run wrote CLAUDE.md")
	}
	if _, err := os.Stat(filepath.Join(project.Dir(dir), lockfile.FileName)); !os.IsNotExist(err) {
		t.Error("dry run wrote the lockfile")
	}
	if _, err := os.Stat(project.StatePath(dir)); !os.IsNotExist(err) {
		t.Error("dry run wrote the state file")
	}
}

func TestRunRepeatSyncNoDrift(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	runner := newRunner(dir, cfg)

	if _, err := runner.Run(context.Background(), Options{AcceptFromAgent: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Drift != lockfile.DriftNone {
		t.Errorf("unchanged content drift = %s, want none", res.Drift)
	}
}

func TestRunDetectsBaseDrift(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	runner := newRunner(dir, cfg)

	if _, err := runner.Run(context.Background(), Options{AcceptFromAgent: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	edited := strings.Replace(testRules, "Run the full suite.", "Run tests twice.", 1)
	if err := os.WriteFile(cfg.RulesPath(dir), []byte(edited), 0644); err != nil {
		t.Fatal(err)
	}

	// Skip the two-way step so only the source change registers.
	res, err := runner.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Drift != lockfile.DriftBase {
		t.Errorf("drift = %s, want base", res.Drift)
	}
}

func TestRunMergesAgentEditsBack(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	runner := newRunner(dir, cfg)

	if _, err := runner.Run(context.Background(), Options{AcceptFromAgent: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Simulate the operator editing the agent file after the sync.
	claudePath := filepath.Join(dir, "CLAUDE.md")
	editedBody := "## Testing\n\nedited inside the agent\n\n## Style\n\nMatch existing code.\n"
	if err := os.WriteFile(claudePath, []byte(editedBody), 0644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(claudePath, future, future); err != nil {
		t.Fatal(err)
	}

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !res.Success {
		t.Fatal("sync failed")
	}
	if len(res.Conflicts) != 0 {
		t.Errorf("single-file edit produced conflicts: %+v", res.Conflicts)
	}
	if res.Drift != lockfile.DriftNone {
		t.Errorf("agent edits reported as drift: %s", res.Drift)
	}

	// The edit landed in the canonical document...
	rules, err := os.ReadFile(cfg.RulesPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(rules), "edited inside the agent") {
		t.Errorf("edit not merged back:\n%s", rules)
	}
	// ...and the regenerated export carries it too.
	regenerated, err := os.ReadFile(claudePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(regenerated), "edited inside the agent") {
		t.Errorf("regenerated export missing the edit:\n%s", regenerated)
	}

	// A third run sees a stable world: the written-back document matches
	// the persisted lockfile.
	res, err = runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if res.Drift != lockfile.DriftNone {
		t.Errorf("drift after writeback = %s, want none", res.Drift)
	}
}

func TestRunAcceptFromAgentDisabled(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	runner := newRunner(dir, cfg)

	if _, err := runner.Run(context.Background(), Options{AcceptFromAgent: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	claudePath := filepath.Join(dir, "CLAUDE.md")
	if err := os.WriteFile(claudePath, []byte("## Testing\n\nagent edit\n"), 0644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(claudePath, future, future); err != nil {
		t.Fatal(err)
	}

	if _, err := runner.Run(context.Background(), Options{AcceptFromAgent: false}); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	rules, err := os.ReadFile(cfg.RulesPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(rules), "agent edit") {
		t.Error("edit merged back despite AcceptFromAgent=false")
	}
	// The export step overwrote the stray edit.
	regenerated, err := os.ReadFile(claudePath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(regenerated), "agent edit") {
		t.Error("agent file not regenerated from the canonical document")
	}
}

func TestRunValidationFailureIsFatal(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	// Two identical sections collide on fingerprint.
	bad := "---\nid: proj/rules\n---\n\n## Dup\n\nsame\n\n## Dup\n\nsame\n"
	if err := os.WriteFile(cfg.RulesPath(dir), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if !syncerr.Is(err, syncerr.CodeValidationFailed) {
		t.Errorf("error = %v, want %s", err, syncerr.CodeValidationFailed)
	}
	if res.Success {
		t.Error("result marked successful despite validation failure")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "CLAUDE.md")); !os.IsNotExist(statErr) {
		t.Error("export ran despite validation failure")
	}
}

func TestRunValidationFailureForced(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	bad := "---\nid: proj/rules\n---\n\n## Dup\n\nsame\n\n## Dup\n\nsame\n"
	if err := os.WriteFile(cfg.RulesPath(dir), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true, Force: true})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if !res.Success {
		t.Error("forced run not successful")
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "VALIDATION_FAILED") {
			found = true
		}
	}
	if !found {
		t.Errorf("forced validation failure not warned: %v", res.Warnings)
	}
}

func TestRunStrictGateBlocksWithoutWrites(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	cfg.Team = true
	cfg.LockfileMode = "strict"
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if !syncerr.Is(err, syncerr.CodeLockfileGateBlocked) {
		t.Fatalf("error = %v, want %s", err, syncerr.CodeLockfileGateBlocked)
	}
	if res.Success {
		t.Error("blocked run marked successful")
	}
	if res.Phase != PhaseValidated {
		t.Errorf("phase = %s, want validated (blocked before export)", res.Phase)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "CLAUDE.md")); !os.IsNotExist(statErr) {
		t.Error("blocked sync still exported")
	}
	if _, statErr := os.Stat(filepath.Join(project.Dir(dir), lockfile.FileName)); !os.IsNotExist(statErr) {
		t.Error("blocked sync persisted a lockfile")
	}
}

func TestRunStrictGatePassesWhenApproved(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	cfg.Team = true
	cfg.LockfileMode = "strict"
	runner := newRunner(dir, cfg)

	// First pass dry-run to learn the hash, approve it, then sync.
	res, err := runner.Run(context.Background(), Options{DryRun: true, AcceptFromAgent: true})
	if !syncerr.Is(err, syncerr.CodeLockfileGateBlocked) {
		t.Fatalf("dry run error = %v, want gate block", err)
	}
	allowList, err := governance.Load(filepath.Join(project.Dir(dir), governance.FileName))
	if err != nil {
		t.Fatal(err)
	}
	if err := allowList.Approve(res.ResultHash); err != nil {
		t.Fatal(err)
	}

	res, err = runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("approved Run: %v", err)
	}
	if !res.Success {
		t.Error("approved sync failed")
	}
}

func TestRunSoftGateWarnsAndProceeds(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	cfg.Team = true
	cfg.LockfileMode = "soft"
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Error("soft gate blocked the sync")
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "not in the allow list") {
			found = true
		}
	}
	if !found {
		t.Errorf("soft gate produced no warning: %v", res.Warnings)
	}
}

// grantApprover approves any hash once.
type grantApprover struct{ granted bool }

func (a *grantApprover) Approve(string) (bool, error) {
	a.granted = true
	return true, nil
}

func TestRunStrictGateConsultsApprover(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	cfg.Team = true
	cfg.LockfileMode = "strict"
	runner := newRunner(dir, cfg)
	approver := &grantApprover{}
	runner.Approver = approver

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success || !approver.granted {
		t.Errorf("Success=%v granted=%v", res.Success, approver.granted)
	}
	// The grant was persisted to the allow list.
	allowList, err := governance.Load(filepath.Join(project.Dir(dir), governance.FileName))
	if err != nil {
		t.Fatal(err)
	}
	if !allowList.Contains(res.ResultHash) {
		t.Error("granted hash not persisted")
	}
}

func TestRunForceBypassesGate(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	cfg.Team = true
	cfg.LockfileMode = "strict"
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true, Force: true})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if !res.Success {
		t.Error("forced run failed")
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "--force") {
			found = true
		}
	}
	if !found {
		t.Errorf("force bypass not warned: %v", res.Warnings)
	}
}

func TestRunUnknownExporterWarnsAndContinues(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude", "no-such-agent"})
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Error("run failed over an unknown exporter")
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "no-such-agent") {
			found = true
		}
	}
	if !found {
		t.Errorf("unknown exporter not warned: %v", res.Warnings)
	}
}

func TestRunDetectionSuggestsUnconfiguredAgent(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	// A cursor config exists on disk but cursor is not configured.
	cursorPath := filepath.Join(dir, ".cursor", "rules", "airule.mdc")
	if err := os.MkdirAll(filepath.Dir(cursorPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cursorPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "cursor") {
			found = true
		}
	}
	if !found {
		t.Errorf("detection did not surface cursor: %v", res.Warnings)
	}

	// The suggestion is cached: the next run stays quiet.
	res, err = runner.Run(context.Background(), Options{AcceptFromAgent: true})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, w := range res.Warnings {
		if strings.Contains(w, "cursor") {
			t.Errorf("repeat suggestion despite cache: %v", res.Warnings)
		}
	}
}

func TestRunAutoEnableConfiguresDetectedAgent(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	cursorPath := filepath.Join(dir, ".cursor", "rules", "airule.mdc")
	if err := os.MkdirAll(filepath.Dir(cursorPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cursorPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true, AutoEnable: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Contains(cfg.Exporters, "cursor") {
		t.Errorf("cursor not auto-enabled: %v", cfg.Exporters)
	}
	if !slices.Contains(res.Written, ".cursor/rules/airule.mdc") {
		t.Errorf("auto-enabled agent not exported this run: %v", res.Written)
	}

	// The patch was persisted.
	saved, err := project.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(saved.Exporters, "cursor") {
		t.Errorf("auto-enable not saved: %v", saved.Exporters)
	}
}

func TestRunSkipDetection(t *testing.T) {
	dir, cfg := setupProject(t, []string{"claude"})
	cursorPath := filepath.Join(dir, ".cursor", "rules", "airule.mdc")
	if err := os.MkdirAll(filepath.Dir(cursorPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cursorPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	runner := newRunner(dir, cfg)

	res, err := runner.Run(context.Background(), Options{AcceptFromAgent: true, SkipDetection: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, w := range res.Warnings {
		if strings.Contains(w, "cursor") {
			t.Errorf("detection ran despite SkipDetection: %v", res.Warnings)
		}
	}
}
