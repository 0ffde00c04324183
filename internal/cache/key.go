package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateKey derives a cache key from the parts that identify an entry.
func GenerateKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:16])
}
