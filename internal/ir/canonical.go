package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
)

// MarshalCanonical produces deterministic JSON for hashing. It is the only
// serialization that may feed content hashes: object keys are sorted,
// nothing is HTML-escaped, and types with ambiguous encodings (floats,
// nulls) are rejected outright rather than encoded inconsistently.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		buf.WriteString(strconv.Quote(val))
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case int:
		buf.WriteString(strconv.Itoa(val))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(k))
			buf.WriteByte(':')
			if err := marshalCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// CanonicalMap converts a bundle to the map form used for hashing. Only
// content-bearing fields participate; formatting and timestamps never do.
func (b *Bundle) CanonicalMap() map[string]any {
	sections := make([]any, len(b.Sections))
	for i, s := range b.Sections {
		sections[i] = map[string]any{
			"heading":     normalizeHeading(s.Heading),
			"content":     normalizeContent(s.Content),
			"level":       s.Level,
			"fingerprint": s.Fingerprint,
		}
	}
	m := map[string]any{
		"id":       b.ID,
		"version":  b.Version,
		"sections": sections,
	}
	if b.Plugs != nil && (len(b.Plugs.Slots) > 0 || len(b.Plugs.Fills) > 0) {
		slots := make(map[string]any, len(b.Plugs.Slots))
		for name, spec := range b.Plugs.Slots {
			slots[name] = map[string]any{
				"description": spec.Description,
				"default":     spec.Default,
				"required":    spec.Required,
			}
		}
		fills := make(map[string]any, len(b.Plugs.Fills))
		for name, value := range b.Plugs.Fills {
			fills[name] = value
		}
		m["plugs"] = map[string]any{"slots": slots, "fills": fills}
	}
	return m
}

// Hash returns the content hash of the bundle as "sha256:<hex>" over the
// canonical serialization. Two bundles that differ only cosmetically
// (trailing whitespace, key order) hash identically.
func (b *Bundle) Hash() (string, error) {
	data, err := MarshalCanonical(b.CanonicalMap())
	if err != nil {
		return "", fmt.Errorf("canonicalizing bundle %s: %w", b.ID, err)
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// HashSections returns the content hash of a bare section list, used for
// the overlay hash where no enclosing bundle exists.
func HashSections(sections []Section) (string, error) {
	list := make([]any, len(sections))
	for i, s := range sections {
		list[i] = map[string]any{
			"heading":     normalizeHeading(s.Heading),
			"content":     normalizeContent(s.Content),
			"level":       s.Level,
			"fingerprint": s.Fingerprint,
		}
	}
	data, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("canonicalizing sections: %w", err)
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
