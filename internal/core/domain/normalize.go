package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeHash returns h in canonical 0x-prefixed lower-case form.
// Upstream rows may omit the prefix.
func NormalizeHash(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	return "0x" + strings.ToLower(trimHexPrefix(h))
}

// NormalizeAddress lower-cases an address and adds the 0x prefix if missing.
func NormalizeAddress(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return ""
	}
	if common.IsHexAddress(a) {
		return strings.ToLower(common.HexToAddress(a).Hex())
	}
	return strings.ToLower(a)
}

// NormalizeKey is the canonical form of a commitment index.
func NormalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
