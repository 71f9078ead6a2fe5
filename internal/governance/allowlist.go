// Package governance implements the team-mode allow-list gate. Only
// previously approved result hashes (or explicit source identifiers) may
// sync; enforcement is soft (warn) or strict (block).
package governance

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airule-dev/airule/internal/branding"
	"github.com/airule-dev/airule/internal/syncerr"
)

// FileName is the allow-list file name inside the project directory.
const FileName = "allowlist"

// Mode selects how an unapproved hash is handled.
type Mode string

const (
	// ModeSoft warns on an unapproved hash and lets the sync proceed.
	ModeSoft Mode = "soft"

	// ModeStrict blocks the sync on an unapproved hash.
	ModeStrict Mode = "strict"
)

// ParseMode validates a mode string, defaulting empty to soft.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.TrimSpace(s)) {
	case "", ModeSoft:
		return ModeSoft, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("unknown lockfile mode %q (want soft or strict)", s)
	}
}

// AllowList is the ordered set of approved entries. It is read-only during
// a sync; Approve is the only append path.
type AllowList struct {
	path    string
	entries []string
	index   map[string]struct{}
}

// Normalize canonicalizes an entry before comparison or storage: hashes get
// the "sha256:" prefix and lowercase hex; anything else (explicit source
// identifiers) is trimmed only. Prefixed and bare forms of the same hash
// always compare equal.
func Normalize(entry string) string {
	trimmed := strings.TrimSpace(entry)
	lower := strings.ToLower(trimmed)
	hexPart := strings.TrimPrefix(lower, "sha256:")
	if isHex(hexPart) && len(hexPart) == 64 {
		return "sha256:" + hexPart
	}
	return trimmed
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

// Load reads the allow list. A missing file yields an empty list: the list
// is only created by the first approval.
func Load(path string) (*AllowList, error) {
	al := &AllowList{path: path, index: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return al, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading allow list: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		entry := strings.TrimSpace(line)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		al.add(Normalize(entry))
	}
	return al, nil
}

func (al *AllowList) add(normalized string) {
	if _, dup := al.index[normalized]; dup {
		return
	}
	al.entries = append(al.entries, normalized)
	al.index[normalized] = struct{}{}
}

// Entries returns the approved entries in order.
func (al *AllowList) Entries() []string {
	return append([]string(nil), al.entries...)
}

// Contains reports whether the entry (in any accepted form) is approved.
func (al *AllowList) Contains(entry string) bool {
	_, ok := al.index[Normalize(entry)]
	return ok
}

// Approve appends an entry and persists the file. Appending preserves all
// existing lines; the list is never rewritten or reordered.
func (al *AllowList) Approve(entry string) error {
	normalized := Normalize(entry)
	if al.Contains(normalized) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(al.path), 0755); err != nil {
		return fmt.Errorf("creating allow list directory: %w", err)
	}
	f, err := os.OpenFile(al.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening allow list: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(normalized + "\n"); err != nil {
		return fmt.Errorf("appending to allow list: %w", err)
	}
	al.add(normalized)
	return nil
}

// Approver decides whether an unapproved hash may be approved mid-sync.
// The terminal-driven implementation lives at the CLI layer; the engine
// default denies, keeping gate decisions deterministic.
type Approver interface {
	Approve(resultHash string) (bool, error)
}

// DenyApprover always declines. Used in non-interactive runs.
type DenyApprover struct{}

func (DenyApprover) Approve(string) (bool, error) { return false, nil }

// GateResult reports the outcome of the allow-list gate.
type GateResult struct {
	Approved bool
	Warnings []string
}

// Gate applies the allow-list check to resultHash. force bypasses the gate
// entirely but is always surfaced as a warning, never silently. In strict
// mode an unapproved hash consults the approver; a grant appends the hash
// to the allow list, a denial blocks the sync with LockfileGateBlocked.
// Under dryRun a grant still approves this run but nothing is written.
func Gate(al *AllowList, resultHash string, mode Mode, force, dryRun bool, approver Approver) (*GateResult, error) {
	res := &GateResult{}

	if force {
		res.Approved = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("allow-list gate bypassed with --force for %s", Normalize(resultHash)))
		return res, nil
	}

	if al.Contains(resultHash) {
		res.Approved = true
		return res, nil
	}

	if mode == ModeSoft {
		res.Approved = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("result hash %s is not in the allow list (soft mode, proceeding)", Normalize(resultHash)))
		return res, nil
	}

	if approver == nil {
		approver = DenyApprover{}
	}
	granted, err := approver.Approve(resultHash)
	if err != nil {
		return nil, fmt.Errorf("gate approval: %w", err)
	}
	if granted {
		if dryRun {
			res.Approved = true
			res.Warnings = append(res.Warnings, fmt.Sprintf("approval of %s granted but not recorded (dry run)", Normalize(resultHash)))
			return res, nil
		}
		if err := al.Approve(resultHash); err != nil {
			return nil, err
		}
		res.Approved = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("approved %s and appended it to the allow list", Normalize(resultHash)))
		return res, nil
	}

	return nil, syncerr.New(syncerr.CodeLockfileGateBlocked, "result hash %s is not in the allow list", Normalize(resultHash)).
		WithRemediation("run '%s approve %s' or re-run with --force", branding.CLIName(), Normalize(resultHash))
}
