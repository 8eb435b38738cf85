package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashDealKey derives a stable storage namespace from a deal ID so that raw
// IDs never appear in object keys.
func HashDealKey(dealID string) string {
	sum := sha256.Sum256([]byte(dealID))
	return hex.EncodeToString(sum[:16])
}
