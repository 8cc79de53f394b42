package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateNodeID creates a deterministic identity for a graph node from its
// (file, kind, name, line) key. The first 16 hex characters of the digest
// keep keys short while collisions stay negligible.
func GenerateNodeID(filePath, kind, name string, line int) string {
	input := fmt.Sprintf("%s:%s:%s:%d", filePath, kind, name, line)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
