package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintDomain separates section fingerprints from other sha256 uses.
// The version suffix allows a future algorithm migration.
const fingerprintDomain = "airule/section/v1"

// fingerprintLen is the hex length fingerprints are truncated to. 16 hex
// chars (64 bits) is plenty for the handful of sections in a rule document
// and keeps conflict reports readable.
const fingerprintLen = 16

// Fingerprint computes the stable identity hash of a rule section from its
// heading and content. Whitespace at line ends and trailing blank lines do
// not affect the result, so reflowing a file never changes identity.
//
// Format: SHA256(domain + 0x00 + heading + 0x00 + content), hex, truncated.
// The null separators prevent boundary ambiguity between the parts.
func Fingerprint(heading, content string) string {
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(normalizeHeading(heading)))
	h.Write([]byte{0x00})
	h.Write([]byte(normalizeContent(content)))
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLen]
}

// normalizeContent strips trailing whitespace per line and trailing blank
// lines so formatting-only edits hash identically.
func normalizeContent(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
