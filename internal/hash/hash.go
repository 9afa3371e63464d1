package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
)

// StringsCanonical returns SHA-256 over length-prefixed parts. It is
// unambiguous for tuple encoding and safe when parts can contain separators.
func StringsCanonical(parts ...string) string {
	h := sha256.New()
	writeCanonical(h, parts)
	return hex.EncodeToString(h.Sum(nil))
}

// Bytes returns hex-encoded SHA-256 of a single byte slice.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeCanonical(w io.Writer, parts []string) {
	var buf [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(buf[:], uint64(len(parts)))
	_, _ = w.Write(buf[:n])

	for _, p := range parts {
		n = binary.PutUvarint(buf[:], uint64(len(p)))
		_, _ = w.Write(buf[:n])
		_, _ = io.WriteString(w, p)
	}
}
