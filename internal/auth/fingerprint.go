package auth

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a BLAKE2b-256 digest over the given parts. JSON parts are
// compacted first so formatting differences do not change the result. Parts
// are length-prefixed so boundaries cannot shift.
func Fingerprint(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	var size [8]byte
	for _, part := range parts {
		part = compactJSON(part)
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		_, _ = h.Write(size[:])
		_, _ = h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func compactJSON(part []byte) []byte {
	if !json.Valid(part) {
		return part
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, part); err != nil {
		return part
	}
	return buf.Bytes()
}
