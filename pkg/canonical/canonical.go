// Package canonical provides RFC 8785 (JSON Canonicalization Scheme) compliant
// serialization for deterministic hashing of compiler artifacts: contract
// instances, arguments, transaction templates and receipts.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// HashPrefix tags every content hash produced by this package.
const HashPrefix = "sha256:"

// JCS returns the RFC 8785 canonical JSON representation of v.
// v is first marshalled with encoding/json (honoring struct tags), then the
// resulting document is transformed into canonical form: keys sorted by
// UTF-16 code units, numbers in shortest round-trip form, no HTML escaping.
func JCS(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// JCSBytes canonicalizes a raw JSON document.
func JCSBytes(raw []byte) ([]byte, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// Hash returns the prefixed SHA-256 digest of the canonical JSON form of v.
func Hash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the prefixed SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// ValidHash reports whether s is a well-formed prefixed SHA-256 digest.
func ValidHash(s string) bool {
	if !strings.HasPrefix(s, HashPrefix) {
		return false
	}
	raw := strings.TrimPrefix(s, HashPrefix)
	if len(raw) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}

// NormalizeLabel returns the NFC normal form of a label with surrounding
// whitespace removed. Labels flow into canonical hashes; two visually
// identical labels must hash identically regardless of Unicode composition.
func NormalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
