package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/airule-dev/airule/internal/ir"
	"github.com/airule-dev/airule/internal/syncerr"
)

// Options controls resolution behavior.
type Options struct {
	// Offline skips all network fetches and serves remote sources from the
	// cache, however stale.
	Offline bool

	// ForceRefresh bypasses fresh cache entries and refetches.
	ForceRefresh bool
}

// SourceInfo records where a resolved fragment came from.
type SourceInfo struct {
	SourcePath string
	CommitSHA  string
}

// Resolution is the outcome of resolving and merging all sources.
type Resolution struct {
	// Pack is the merged bundle (base with overlays applied).
	Pack *ir.Bundle

	// Base is the unmodified base bundle, kept for lockfile hashing.
	Base *ir.Bundle

	// Overlay holds every section contributed by overlay sources, in
	// overlay order, kept for lockfile hashing.
	Overlay []ir.Section

	// Sources lists each resolved source with its commit, in merge order.
	Sources []SourceInfo

	// Conflicts lists sections written by more than one source.
	Conflicts []Conflict

	// Warnings collects non-fatal resolution notices (manifest fallbacks,
	// stale cache use).
	Warnings []string
}

// Resolver loads source descriptors into bundles and merges them. Fetcher
// and Cache are injected capabilities.
type Resolver struct {
	Fetcher Fetcher
	Cache   Cache
}

// cacheEnvelope is the JSON payload stored per remote source.
type cacheEnvelope struct {
	CommitSHA string `json:"commit_sha"`
	ID        string `json:"id"`
	Document  []byte `json:"document"`
}

type fragment struct {
	bundle   *ir.Bundle
	info     SourceInfo
	warnings []string
}

// Resolve loads every descriptor (remote fetches run concurrently, each
// producing an independent fragment) and merges the results base-first.
func (r *Resolver) Resolve(ctx context.Context, descs []Descriptor, opts Options) (*Resolution, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	for i, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("source[%d]: %w", i, err)
		}
	}

	fragments := make([]fragment, len(descs))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range descs {
		i, d := i, d
		g.Go(func() error {
			frag, err := r.loadOne(gctx, d, opts)
			if err != nil {
				return fmt.Errorf("source %s: %w", d.Identity(), err)
			}
			fragments[i] = *frag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bundles := make([]*ir.Bundle, len(fragments))
	identities := make([]string, len(fragments))
	res := &Resolution{}
	for i, frag := range fragments {
		bundles[i] = frag.bundle
		identities[i] = descs[i].Identity()
		res.Sources = append(res.Sources, frag.info)
		res.Warnings = append(res.Warnings, frag.warnings...)
	}

	res.Base = bundles[0]
	for _, b := range bundles[1:] {
		res.Overlay = append(res.Overlay, b.Sections...)
	}
	res.Pack, res.Conflicts = Merge(bundles, identities)
	return res, nil
}

func (r *Resolver) loadOne(ctx context.Context, d Descriptor, opts Options) (*fragment, error) {
	switch d.Type {
	case TypeLocal:
		return r.loadLocal(d)
	case TypeGit:
		return r.loadRemote(ctx, d, opts)
	default:
		return nil, fmt.Errorf("unknown source type %q", d.Type)
	}
}

func (r *Resolver) loadLocal(d Descriptor) (*fragment, error) {
	frag := &fragment{info: SourceInfo{SourcePath: d.Path}}

	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", d.Path, err)
	}
	if !info.IsDir() {
		bundle, err := LoadFile(d.Path, fallbackIDFor(d))
		if err != nil {
			return nil, err
		}
		frag.bundle = bundle
		return frag, nil
	}

	bundle, err := LoadFromDir(d.Path, fallbackIDFor(d))
	if syncerr.Is(err, syncerr.CodeManifestNotFound) {
		frag.warnings = append(frag.warnings, fmt.Sprintf("source %s has no pack manifest, treating as plain rules directory", d.Identity()))
		bundle, err = LoadPlainFromDir(d.Path, fallbackIDFor(d))
	}
	if err != nil {
		return nil, err
	}
	frag.bundle = bundle
	return frag, nil
}

func (r *Resolver) loadRemote(ctx context.Context, d Descriptor, opts Options) (*fragment, error) {
	key := CacheKey(d.Identity())

	if opts.Offline {
		frag, ok := r.fromCache(key, d, true)
		if !ok {
			return nil, syncerr.New(syncerr.CodeSourceUnavailable, "offline and no cached copy of %s", d.Identity()).
				WithRemediation("run once without --offline to warm the cache")
		}
		return frag, nil
	}

	if !opts.ForceRefresh {
		if frag, ok := r.fromCache(key, d, false); ok {
			return frag, nil
		}
	}

	frag, fetchErr := r.fetch(ctx, d, key)
	if fetchErr == nil {
		return frag, nil
	}

	// Fetch failed: a stale cache entry still beats hard failure.
	if frag, ok := r.fromCache(key, d, true); ok {
		frag.warnings = append(frag.warnings, fmt.Sprintf("fetch of %s failed (%v), using cached copy", d.Identity(), fetchErr))
		return frag, nil
	}

	return nil, syncerr.Wrap(syncerr.CodeSourceUnavailable, fetchErr, "fetching %s", d.Identity()).
		WithRemediation("check the URL and network, or retry with --offline once a cache exists")
}

func (r *Resolver) fetch(ctx context.Context, d Descriptor, key string) (*fragment, error) {
	dir, sha, cleanup, err := r.Fetcher.Fetch(ctx, d.URL, d.Ref)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	frag := &fragment{info: SourceInfo{SourcePath: d.Identity(), CommitSHA: sha}}

	bundle, err := LoadFromDir(dir, fallbackIDFor(d))
	if syncerr.Is(err, syncerr.CodeManifestNotFound) {
		frag.warnings = append(frag.warnings, fmt.Sprintf("source %s has no pack manifest, treating as plain rules repository", d.Identity()))
		bundle, err = LoadPlainFromDir(dir, fallbackIDFor(d))
	}
	if err != nil {
		return nil, err
	}
	frag.bundle = bundle

	// Cache the resolved document so later runs work offline.
	doc, err := ir.RenderDocument(bundle)
	if err == nil {
		envelope, marshalErr := json.Marshal(&cacheEnvelope{CommitSHA: sha, ID: bundle.ID, Document: doc})
		if marshalErr == nil {
			if cacheErr := r.Cache.Set(key, envelope); cacheErr != nil {
				frag.warnings = append(frag.warnings, fmt.Sprintf("caching %s: %v", d.Identity(), cacheErr))
			}
		}
	}
	return frag, nil
}

func (r *Resolver) fromCache(key string, d Descriptor, allowStale bool) (*fragment, bool) {
	var data []byte
	var ok bool
	if allowStale {
		data, ok = r.Cache.GetStale(key)
	} else {
		data, ok = r.Cache.Get(key)
	}
	if !ok {
		return nil, false
	}
	var envelope cacheEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false
	}
	bundle, err := ir.ParseDocument(envelope.Document, envelope.ID)
	if err != nil {
		return nil, false
	}
	return &fragment{
		bundle: bundle,
		info:   SourceInfo{SourcePath: d.Identity(), CommitSHA: envelope.CommitSHA},
	}, true
}

// fallbackIDFor derives a bundle id from the source identity when the
// source document carries none.
func fallbackIDFor(d Descriptor) string {
	id := d.Identity()
	if d.Type == TypeGit {
		id = strings.TrimSuffix(path.Base(d.URL), ".git")
	}
	return id
}
