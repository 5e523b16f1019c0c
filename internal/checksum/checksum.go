// Package checksum computes content digests used for change detection and
// optimistic concurrency on batches.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns the quoted digest of data for use in an ETag header.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// Matches reports whether an If-Match value accepts a resource whose
// current digest is current. An empty value or "*" accepts anything;
// surrounding quotes and a weak prefix are ignored.
func Matches(ifMatch, current string) bool {
	v := strings.TrimSpace(ifMatch)
	if v == "" || v == "*" {
		return true
	}
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`) == current
}
