// Package project owns the per-project on-disk surface: the .airule/
// directory with the project config, the canonical rule document, the sync
// state file, the lockfile, and the allow list. Config mutation goes
// through explicit patch helpers plus the single Save boundary; nothing
// else rewrites the config, and unrelated keys survive every patch.
package project
