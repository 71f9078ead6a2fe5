// Package exporter translates IR bundles into agent-native config files
// and, for adapters that support it, parses those files back into sections.
//
// The adapter set is open: builtins cover the common agents, and projects
// add new ones by dropping a manifest (plus an optional interpreted Go
// handler) into .airule/exporters/ — the registry never enumerates agents
// at compile time.
package exporter
