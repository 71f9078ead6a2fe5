// Package cli defines the Cobra command tree for the airule CLI. Each file
// in this package registers one top-level command (sync, init, approve,
// etc.) with the root command. Command implementations delegate to internal
// packages for engine logic and only handle flag parsing, I/O formatting,
// and user interaction.
package cli
