package pdfdoc

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a stable hex digest of a document buffer, used to spot
// re-uploads of an already imported document.
func Fingerprint(doc []byte) string {
	sum := blake2b.Sum256(doc)
	return hex.EncodeToString(sum[:])
}
