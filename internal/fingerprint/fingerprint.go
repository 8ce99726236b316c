package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
)

// Compute derives the deterministic identity hash of a normalized label set.
// Params: normalized label map.
// Returns: hex SHA-1 over canonical sorted key=value pairs; same labels
// always produce the same fingerprint regardless of insertion order.
func Compute(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	capacity := 0
	for key, value := range labels {
		keys = append(keys, key)
		capacity += len(key) + 1 + len(value) + 1
	}
	sort.Strings(keys)

	canonical := make([]byte, 0, capacity)
	for index, key := range keys {
		if index > 0 {
			canonical = append(canonical, '\n')
		}
		canonical = append(canonical, key...)
		canonical = append(canonical, '=')
		canonical = append(canonical, labels[key]...)
	}

	digest := sha1.Sum(canonical)
	var encoded [sha1.Size * 2]byte
	hex.Encode(encoded[:], digest[:])
	return string(encoded[:])
}
