package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for content-addressed hashing. The version suffix enables
// future algorithm migration without colliding with old hashes.
const domainDataKeys = "beamrun/datakeys/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DataKeysHash computes a content-addressed identity for a data-key set.
// The engine emits one Descriptor per (stream name, data-key-set hash);
// a read producing a different key set under the same stream name forces
// a fresh Descriptor.
func DataKeysHash(keys map[string]DataKey) (string, error) {
	m := make(map[string]any, len(keys))
	for name, dk := range keys {
		m[name] = dataKeyMap(dk)
	}
	canonical, err := marshalObject(m)
	if err != nil {
		return "", fmt.Errorf("DataKeysHash: %w", err)
	}
	return hashWithDomain(domainDataKeys, canonical), nil
}
