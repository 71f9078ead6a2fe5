// Package source resolves rule sources into IR bundles and merges them.
//
// Sources are ordered: the first is the merge base, the rest are overlays
// applied last-write-wins per section fingerprint. Remote (git) sources are
// fetched through an injected Fetcher capability and cached on disk so that
// offline runs keep working against the last fetched content.
package source
