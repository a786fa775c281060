package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a token value into a fixed-size cache key. Signed
// tokens can be long; the hash also keeps raw token material out of the
// cache keyspace.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
