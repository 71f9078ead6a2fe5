// Package twoway pulls edits made directly to agent files back into the
// canonical IR. Files are flagged as edited when their mtime is newer than
// the recorded last sync, parsed with their own adapter's importer, and
// merged section by section. When several files edit the same section, a
// Resolver strategy picks the winner; the default is deterministic
// latest-mtime-wins and needs no live prompt.
package twoway
