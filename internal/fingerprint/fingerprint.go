// Package fingerprint computes content-addressed identities for raw records.
//
// A fingerprint is a sha256 hex digest over a fixed, versioned sequence of
// normalized metadata fields. The version string is mixed into the hashed
// input so that upgrading the field set changes every digest at once rather
// than leaving a few records with accidentally stable hashes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// DefaultVersion is the fingerprint function used for new projects.
const DefaultVersion = "v0.1"

// OldHashPrefix marks digests computed with a superseded version during a
// rehash campaign.
const OldHashPrefix = "old_hash_"

var whitespaceRe = regexp.MustCompile(`\s+`)

// Function is a versioned fingerprint function. Fields lists the raw-record
// keys hashed, in order; a key may appear more than once.
type Function struct {
	Version string
	Fields  []string
}

// registry of known fingerprint versions. The authoritative field set is
// configuration: projects persist the version they were created with.
var registry = map[string]Function{
	DefaultVersion: {
		Version: DefaultVersion,
		// author appears twice for compatibility with digests minted by the
		// earliest rehash campaign.
		Fields: []string{"author", "author", "title", "journal", "booktitle", "year", "volume", "number"},
	},
}

// Register adds a fingerprint version. Registering an existing version is an
// error; versions are immutable once published.
func Register(f Function) error {
	if f.Version == "" {
		return fmt.Errorf("fingerprint version must not be empty")
	}
	if len(f.Fields) == 0 {
		return fmt.Errorf("fingerprint %s: field list must not be empty", f.Version)
	}
	if _, exists := registry[f.Version]; exists {
		return fmt.Errorf("fingerprint version %s already registered", f.Version)
	}
	registry[f.Version] = f
	return nil
}

// Ensure registers f when its version is new and verifies that an existing
// registration carries the same field list. Projects declare their
// fingerprint functions in settings.yml, so the same version is ensured on
// every settings load.
func Ensure(f Function) error {
	existing, ok := registry[f.Version]
	if !ok {
		return Register(f)
	}
	if len(existing.Fields) != len(f.Fields) {
		return fmt.Errorf("fingerprint version %s redefined with a different field list", f.Version)
	}
	for i, field := range existing.Fields {
		if f.Fields[i] != field {
			return fmt.Errorf("fingerprint version %s redefined with a different field list", f.Version)
		}
	}
	return nil
}

// Lookup returns the fingerprint function for a version.
func Lookup(version string) (Function, error) {
	f, ok := registry[version]
	if !ok {
		return Function{}, fmt.Errorf("unknown fingerprint version: %s", version)
	}
	return f, nil
}

// normalize lowercases, collapses whitespace runs and trims a field value.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Compute returns the 64-character hex digest of raw under f. Missing fields
// contribute the empty string; the field "number" falls back to "issue".
func (f Function) Compute(raw map[string]string) string {
	var b strings.Builder
	b.WriteString(f.Version)
	for _, field := range f.Fields {
		value := raw[field]
		if value == "" && field == "number" {
			value = raw["issue"]
		}
		b.WriteString(normalize(value))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Compute is a convenience wrapper using the registered version.
func Compute(version string, raw map[string]string) (string, error) {
	f, err := Lookup(version)
	if err != nil {
		return "", err
	}
	return f.Compute(raw), nil
}

// IsOld reports whether h carries the superseded-version prefix.
func IsOld(h string) bool {
	return strings.HasPrefix(h, OldHashPrefix)
}

// MarkOld prefixes a digest for a rehash campaign. Already-marked digests are
// returned unchanged.
func MarkOld(h string) string {
	if IsOld(h) {
		return h
	}
	return OldHashPrefix + h
}
