// Package walletaddr normalizes and formats wallet addresses. Storage and
// comparisons are always lower-case (§9 "Normalization"); output to API
// callers uses EIP-55 checksum casing.
package walletaddr

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Normalize lower-cases a wallet address for storage and comparison.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Valid reports whether addr is a syntactically valid 20-byte hex address.
func Valid(addr string) bool {
	return common.IsHexAddress(addr)
}

// Checksum renders addr in EIP-55 mixed-case checksum form for API output.
func Checksum(addr string) string {
	return common.HexToAddress(addr).Hex()
}

// Equal compares two wallet addresses case-insensitively.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
