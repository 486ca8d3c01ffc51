package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// KeyVersion prefixes every fingerprint. Changing the derivation requires
// bumping it, which invalidates all persisted entries.
const KeyVersion = "v1"

// Key fingerprints one LLM call. Each field is length-prefixed before
// hashing so that shifting bytes between adjacent fields cannot collide.
// The result is a 64 character lowercase hex SHA-256 digest.
func Key(model, templateContent, prompt, documentContent string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, part := range []string{KeyVersion, model, templateContent, prompt, documentContent} {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(part)))
		h.Write(lenBuf[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
