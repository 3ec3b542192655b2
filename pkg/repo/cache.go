package repo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CacheKey hashes an ordered list of arbitrary values into a stable cache
// key fragment. It accepts any mix of primitives, byte slices, time.Time,
// and structs; order matters, and is never normalized.
func CacheKey(values ...any) string {
	h := sha256.New()
	for _, v := range values {
		fmt.Fprintf(h, "%T:%#v|", v, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}
