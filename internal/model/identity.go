package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// minuteLayout renders a UTC timestamp floored to its minute bucket.
// The legacy replay path and the live runner must produce byte-identical
// bucket strings for the same instant, so this is the only place the
// layout appears.
const minuteLayout = "2006-01-02T15:04:00Z"

// MinuteBucket returns the minute-bucketed UTC form of t.
func MinuteBucket(t time.Time) string {
	return t.UTC().Format(minuteLayout)
}

// DerivePromptID returns the deterministic prompt id for a prompt text:
// the first 16 lowercase hex characters of its SHA-256 digest. Identical
// text always maps to the same id regardless of model or time.
func DerivePromptID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// RowIdentity returns the deterministic record identity for one
// (domain, prompt, model, minute) combination: the first 32 lowercase hex
// characters of SHA-256 over the pipe-joined tuple. tsMinute must be a
// MinuteBucket string.
func RowIdentity(domain, promptID, modelName, tsMinute string) string {
	key := fmt.Sprintf("%s|%s|%s|%s", domain, promptID, modelName, tsMinute)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}
