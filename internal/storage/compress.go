package storage

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// lz4Prefix marks a stored text column as lz4-compressed.
const lz4Prefix = "lz4:"

// plainPrefix escapes plain-stored text whose first bytes collide with a
// marker. Without it, raw content that legitimately begins with "lz4:"
// would be misread as compressed on load.
const plainPrefix = "txt:"

// lz4LenHeader is the size of the original-length header in bytes.
const lz4LenHeader = 4

// maxDecompressedLen caps the original length a compressed column may
// claim. The header is untrusted input from the database; without the cap
// a corrupt row could demand a 4 GiB allocation before decompression even
// starts.
const maxDecompressedLen = 64 << 20

// compressText lz4-compresses s for storage when compression actually
// shrinks it; short or incompressible text is stored plain. Plain text
// that happens to begin with a marker is escaped so every value reads
// back unambiguously.
func compressText(s string) string {
	if len(s) < lz4LenHeader {
		return escapePlain(s)
	}

	src := []byte(s)
	buf := make([]byte, lz4LenHeader+lz4.CompressBlockBound(len(src)))
	binary.BigEndian.PutUint32(buf, uint32(len(src)))

	n, compressErr := lz4.CompressBlock(src, buf[lz4LenHeader:], nil)
	if compressErr != nil || n == 0 {
		return escapePlain(s)
	}

	plain := escapePlain(s)

	encoded := lz4Prefix + base64.StdEncoding.EncodeToString(buf[:lz4LenHeader+n])
	if len(encoded) >= len(plain) {
		return plain
	}

	return encoded
}

// escapePlain prefixes plain text that would otherwise parse as a marked
// column. Escaping "txt:" itself keeps the round trip lossless.
func escapePlain(s string) string {
	if strings.HasPrefix(s, lz4Prefix) || strings.HasPrefix(s, plainPrefix) {
		return plainPrefix + s
	}

	return s
}

// decompressText reverses compressText.
func decompressText(s string) (string, error) {
	if strings.HasPrefix(s, plainPrefix) {
		return s[len(plainPrefix):], nil
	}

	if !strings.HasPrefix(s, lz4Prefix) {
		return s, nil
	}

	raw, decodeErr := base64.StdEncoding.DecodeString(s[len(lz4Prefix):])
	if decodeErr != nil {
		return "", fmt.Errorf("decode compressed column: %w", decodeErr)
	}

	if len(raw) < lz4LenHeader {
		return "", fmt.Errorf("compressed column is truncated")
	}

	size := binary.BigEndian.Uint32(raw)
	if size > maxDecompressedLen {
		return "", fmt.Errorf("compressed column claims %d bytes, cap is %d", size, maxDecompressedLen)
	}

	dst := make([]byte, size)

	n, decompressErr := lz4.UncompressBlock(raw[lz4LenHeader:], dst)
	if decompressErr != nil {
		return "", fmt.Errorf("decompress column: %w", decompressErr)
	}

	return string(dst[:n]), nil
}
