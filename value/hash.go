package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainDocument prefixes document checksums. The version suffix enables
// future algorithm migration without ambiguity against old hashes.
const DomainDocument = "skiff/document/v1"

// HashWithDomain computes SHA-256 over domain-separated input.
// Format: SHA256(domain || 0x00 || data). The null byte prevents
// domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the content hash of a value under the given domain.
// Returns an error if the value cannot be canonically encoded.
func Hash(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return HashWithDomain(domain, canonical), nil
}
