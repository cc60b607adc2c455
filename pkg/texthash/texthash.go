// Package texthash produces the content hashes used for exact-match
// deduplication. A content hash is the SHA-256 digest of the normalized
// content's UTF-8 bytes, rendered as 64 lowercase hex characters.
package texthash

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// HexLength is the length of a SHA-256 digest rendered as lowercase hex.
const HexLength = 64

// hashPattern matches a well-formed content hash.
var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// SHA256Hex returns the SHA-256 digest of the UTF-8 bytes of s,
// rendered as 64 lowercase hex characters.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))

	return hex.EncodeToString(sum[:])
}

// Valid reports whether s is a well-formed content hash.
func Valid(s string) bool {
	return hashPattern.MatchString(s)
}
