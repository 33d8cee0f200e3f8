// Package digest provides the hashing primitive used for every commitment
// in the blockchain: block headers, transactions and merkle nodes.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a hex encoded commitment.
const Size = sha256.Size * 2

// Commit returns the double sha256 of the value as a lowercase hex string.
func Commit(value string) string {
	first := sha256.Sum256([]byte(value))
	second := sha256.Sum256(first[:])
	return hex.EncodeToString(second[:])
}
