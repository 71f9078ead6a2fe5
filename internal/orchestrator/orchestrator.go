// Package orchestrator composes the sync engine end to end: resolve
// sources, pull agent edits back in, validate, gate, export, persist. It
// owns the lifecycle of the merged bundle and the sync result; the
// lockfile and allow list are the only state it writes to disk.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airule-dev/airule/internal/config"
	"github.com/airule-dev/airule/internal/detect"
	"github.com/airule-dev/airule/internal/exporter"
	"github.com/airule-dev/airule/internal/governance"
	"github.com/airule-dev/airule/internal/ir"
	"github.com/airule-dev/airule/internal/lockfile"
	"github.com/airule-dev/airule/internal/project"
	"github.com/airule-dev/airule/internal/source"
	"github.com/airule-dev/airule/internal/syncerr"
	"github.com/airule-dev/airule/internal/twoway"
)

// Options carries the sync flags plus the injected strategy capabilities.
type Options struct {
	// DryRun computes everything but writes nothing.
	DryRun bool

	// Force proceeds past validation failures and the allow-list gate,
	// always with a warning.
	Force bool

	// Offline serves remote sources from cache only.
	Offline bool

	// ForceRefresh refetches remote sources past fresh cache entries.
	ForceRefresh bool

	// AcceptFromAgent enables the two-way step that merges agent-file
	// edits back into the IR. The CLI defaults it on.
	AcceptFromAgent bool

	// SkipDetection disables the agent presence probe.
	SkipDetection bool

	// AutoEnable configures newly detected agents without prompting.
	AutoEnable bool

	Verbose bool
}

// Runner binds a project to the engine with its injected capabilities. A
// zero value plus Config/ProjectPath works: every capability has an
// engine-side default that keeps the run deterministic and prompt-free.
type Runner struct {
	ProjectPath string
	Config      *project.Config

	// Fetcher fetches remote sources; defaults to GitFetcher.
	Fetcher source.Fetcher

	// Cache stores fetched sources; defaults to the user-scope disk cache.
	Cache source.Cache

	// Resolver decides two-way conflicts; defaults to latest-mtime-wins.
	Resolver twoway.Resolver

	// Approver decides strict-gate approvals; defaults to deny.
	Approver governance.Approver

	// SaveConfig persists config patches (auto-enable); defaults to
	// project.Save. The engine calls it at most once per run.
	SaveConfig func(projectPath string, cfg *project.Config) error
}

// Run executes one sync. The returned SyncResult is always non-nil; on a
// fatal error it records how far the machine got.
func (r *Runner) Run(ctx context.Context, opts Options) (*SyncResult, error) {
	res := &SyncResult{Phase: PhaseIdle}

	registry := exporter.NewRegistry()
	if err := registry.DiscoverDir(project.ExportersDir(r.ProjectPath)); err != nil {
		return res, err
	}
	res.warn(registry.Warnings...)

	state, err := project.LoadState(r.ProjectPath)
	if err != nil {
		return res, err
	}

	if !opts.SkipDetection {
		r.runDetection(registry, state, opts, res)
	}

	adapters, selectWarnings := registry.Select(r.Config.Exporters)
	res.warn(selectWarnings...)

	// Resolve sources.
	resolution, err := r.resolveSources(ctx, opts, res)
	if err != nil {
		return res, err
	}
	res.enter(PhaseSourcesResolved)
	res.SourceConflicts = resolution.Conflicts
	res.warn(resolution.Warnings...)
	for _, info := range resolution.Sources {
		res.audit("resolve", info.SourcePath, "", info.CommitSHA)
	}
	for _, c := range resolution.Conflicts {
		res.audit("source-conflict", c.Heading, fmt.Sprintf("written by %s", strings.Join(c.Sources, ", ")), c.Fingerprint)
	}

	// Pull agent edits back in.
	bundle := resolution.Pack
	editsApplied := false
	if opts.AcceptFromAgent {
		bundle, editsApplied = r.mergeAgentEdits(resolution.Pack, adapters, state, opts, res)
	}
	res.enter(PhaseMerged)

	// Validate.
	if err := bundle.Validate(); err != nil {
		verr := syncerr.Wrap(syncerr.CodeValidationFailed, err, "merged bundle is invalid").
			WithRemediation("fix the rule document, or re-run with --force to export anyway")
		if !opts.Force {
			return res, verr
		}
		res.warn(verr.Error())
	}
	res.enter(PhaseValidated)

	// Lockfile triple + allow-list gate. Drift is classified against the
	// pre-merge triple so it reports source-side changes only; agent edits
	// folded in this run are not drift. When edits were merged back into
	// the canonical document and that document is the base source, the
	// persisted base hash follows the written-back content, keeping the
	// next run's comparison clean.
	preMerge, err := lockfile.Compute(resolution.Base, resolution.Overlay, resolution.Pack)
	if err != nil {
		return res, err
	}
	hashBase := resolution.Base
	if editsApplied && r.canonicalIsBase() {
		hashBase = bundle
	}
	lf, err := lockfile.Compute(hashBase, resolution.Overlay, bundle)
	if err != nil {
		return res, err
	}
	res.ResultHash = lf.ResultHash

	lockPath := filepath.Join(project.Dir(r.ProjectPath), lockfile.FileName)
	previous, err := lockfile.Load(lockPath)
	if err != nil {
		res.warn(fmt.Sprintf("ignoring unreadable lockfile: %v", err))
	}
	res.Drift = lockfile.Classify(previous, preMerge)
	if res.Drift != lockfile.DriftNone {
		res.audit("drift", string(res.Drift), fmt.Sprintf("result hash %s", lf.ResultHash), "")
	}

	if r.Config.Team {
		if err := r.gate(lf.ResultHash, opts, res); err != nil {
			return res, err
		}
		res.enter(PhaseGated)
	}

	// Export. Once reached, export always runs regardless of accumulated
	// warnings; adapters fail individually, never the whole step.
	r.export(bundle, adapters, opts, res)
	res.enter(PhaseExported)

	// Persist lockfile and sync state.
	if !opts.DryRun {
		if err := lf.Save(lockPath); err != nil {
			return res, err
		}
		if err := r.persistState(state, res); err != nil {
			return res, err
		}
	}
	res.enter(PhasePersisted)
	res.Success = true
	return res, nil
}

func (r *Runner) resolveSources(ctx context.Context, opts Options, res *SyncResult) (*source.Resolution, error) {
	fetcher := r.Fetcher
	if fetcher == nil {
		fetcher = source.GitFetcher{}
	}
	cache := r.Cache
	if cache == nil {
		cache = source.NewDiskCache(filepath.Join(config.CacheDir(), "sources"), config.SourceCacheTTL())
	}
	resolver := &source.Resolver{Fetcher: fetcher, Cache: cache}
	return resolver.Resolve(ctx, r.Config.ResolvedSources(r.ProjectPath), source.Options{
		Offline:      opts.Offline,
		ForceRefresh: opts.ForceRefresh,
	})
}

func (r *Runner) runDetection(registry *exporter.Registry, state *project.State, opts Options, res *SyncResult) {
	detected := detect.Agents(r.ProjectPath, registry)
	suggestions := detect.Suggest(detected, r.Config.Exporters, r.Config.DetectionIgnore)
	if len(suggestions) == 0 {
		state.Detection = detect.NewCache(detected, r.Config.Exporters)
		return
	}

	if opts.AutoEnable {
		changed := false
		for _, name := range suggestions {
			if r.Config.EnableExporter(name) {
				changed = true
				res.audit("auto-enable", name, "detected agent configured for sync", "")
			}
		}
		if changed && !opts.DryRun {
			save := r.SaveConfig
			if save == nil {
				save = project.Save
			}
			if err := save(r.ProjectPath, r.Config); err != nil {
				res.warn(fmt.Sprintf("saving auto-enabled exporters: %v", err))
			}
		}
		state.Detection = detect.NewCache(detected, r.Config.Exporters)
		return
	}

	alreadySeen := detect.CacheIsCurrent(state.Detection, detected, r.Config.Exporters)
	state.Detection = detect.NewCache(detected, r.Config.Exporters)
	if alreadySeen {
		return
	}
	res.warn(fmt.Sprintf("detected agents not configured for sync: %s (enable with --auto-enable, or add them to the project config)",
		strings.Join(suggestions, ", ")))
}

// canonicalIsBase reports whether the base (first) source is the project's
// own canonical rule document, which is where two-way edits are written
// back.
func (r *Runner) canonicalIsBase() bool {
	sources := r.Config.ResolvedSources(r.ProjectPath)
	return sources[0].Type == source.TypeLocal && sources[0].Path == r.Config.RulesPath(r.ProjectPath)
}

func (r *Runner) mergeAgentEdits(bundle *ir.Bundle, adapters []*exporter.Adapter, state *project.State, opts Options, res *SyncResult) (*ir.Bundle, bool) {
	edits := twoway.DetectEdits(r.ProjectPath, state.Tracked, twoway.Owners(adapters))
	res.enter(PhaseEditsDetected)
	if len(edits) == 0 {
		return bundle, false
	}
	for _, e := range edits {
		res.audit("edit-detected", e.Path, fmt.Sprintf("modified %s", e.Mtime.Format("2006-01-02 15:04:05")), "")
	}

	merged := twoway.MergeEdits(r.ProjectPath, bundle, edits, r.Resolver)
	res.warn(merged.Warnings...)
	res.Conflicts = append(res.Conflicts, merged.Conflicts...)
	for _, c := range merged.Conflicts {
		res.audit("edit-conflict", c.Heading, fmt.Sprintf("winner %s of %d files", c.Winner, len(c.Files)), c.Fingerprint)
	}
	if !merged.Changed {
		return bundle, false
	}

	// Write the updated IR back to the canonical source document.
	if !opts.DryRun {
		doc, err := ir.RenderDocument(merged.Bundle)
		if err != nil {
			res.warn(fmt.Sprintf("rendering canonical document: %v", err))
			return merged.Bundle, true
		}
		rulesPath := r.Config.RulesPath(r.ProjectPath)
		if err := os.WriteFile(rulesPath, doc, 0644); err != nil {
			res.warn(fmt.Sprintf("writing canonical document %s: %v", rulesPath, err))
			return merged.Bundle, true
		}
		res.audit("writeback", rulesPath, fmt.Sprintf("%d edited files merged into IR", len(edits)), "")
	}
	return merged.Bundle, true
}

func (r *Runner) gate(resultHash string, opts Options, res *SyncResult) error {
	allowPath := filepath.Join(project.Dir(r.ProjectPath), governance.FileName)
	allowList, err := governance.Load(allowPath)
	if err != nil {
		return err
	}

	modeStr := r.Config.LockfileMode
	if modeStr == "" {
		modeStr = config.Get(config.KeyLockfileMode)
	}
	mode, err := governance.ParseMode(modeStr)
	if err != nil {
		return err
	}

	gate, err := governance.Gate(allowList, resultHash, mode, opts.Force, opts.DryRun, r.Approver)
	if err != nil {
		return err
	}
	res.warn(gate.Warnings...)
	res.audit("gate", resultHash, fmt.Sprintf("mode %s", mode), "")
	return nil
}

// export writes each adapter's files sequentially. Adapter writes never
// run in parallel: two adapters may legitimately target the same path
// (last-registered wins) and interleaved partial writes must not happen.
func (r *Runner) export(bundle *ir.Bundle, adapters []*exporter.Adapter, opts Options, res *SyncResult) {
	for _, adapter := range adapters {
		name := adapter.Manifest.Name
		if opts.DryRun {
			res.Written = append(res.Written, adapter.Manifest.Outputs...)
			res.audit("export-dry-run", name, strings.Join(adapter.Manifest.Outputs, ", "), "")
			continue
		}
		out, err := adapter.Handler.Export(bundle, r.ProjectPath)
		if err != nil {
			res.warn(fmt.Sprintf("adapter %q failed, skipping: %v", name, err))
			continue
		}
		res.Written = append(res.Written, out.Written...)
		res.warn(out.Warnings...)
		res.audit("export", name, strings.Join(out.Written, ", "), adapter.Source)
	}
}

// timeNow is swapped out in tests.
var timeNow = func() time.Time { return time.Now().UTC() }

// persistState records the mtimes of everything just written so the next
// run can tell operator edits apart from our own output.
func (r *Runner) persistState(state *project.State, res *SyncResult) error {
	state.LastSync = timeNow()
	for _, relPath := range res.Written {
		info, err := os.Stat(filepath.Join(r.ProjectPath, filepath.FromSlash(relPath)))
		if err != nil {
			continue
		}
		state.Tracked[relPath] = info.ModTime()
	}
	return project.SaveState(r.ProjectPath, state)
}
