// Package checksum provides stable content digests for change detection
// and provenance anchoring.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Compute returns the SHA-256 digest of the canonical JSON form of v as
// 64 lowercase hex characters. The value is round-tripped through
// encoding/json so that map key order never affects the digest and
// structs digest identically to their map equivalents.
func Compute(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "checksum: marshal")
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", eris.Wrap(err, "checksum: canonicalize")
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", eris.Wrap(err, "checksum: marshal canonical")
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether v matches the expected digest.
func Verify(v any, expected string) (bool, error) {
	actual, err := Compute(v)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

// DetectChange reports whether a and b have different canonical digests.
func DetectChange(a, b any) (bool, error) {
	da, err := Compute(a)
	if err != nil {
		return false, err
	}
	db, err := Compute(b)
	if err != nil {
		return false, err
	}
	return da != db, nil
}
