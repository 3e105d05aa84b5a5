// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// walletAddressPattern matches a 0x-prefixed 40-hex-digit address.
var walletAddressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// WalletAddress is the identity key of a profile, as issued by the external
// wallet provider. Stored lowercase.
type WalletAddress string

// NormalizeWalletAddress lowercases and trims an address.
func NormalizeWalletAddress(raw string) WalletAddress {
	return WalletAddress(strings.ToLower(strings.TrimSpace(raw)))
}

// IsValid reports whether the address has the expected format.
func (w WalletAddress) IsValid() bool {
	return walletAddressPattern.MatchString(string(w))
}

// String returns the string representation.
func (w WalletAddress) String() string {
	return string(w)
}

// Amount represents a quantity of EDU tokens. All monetary fields are
// non-negative; direction is carried by the ledger entry type.
type Amount int64

// IsValid reports whether the amount is non-negative.
func (a Amount) IsValid() bool {
	return a >= 0
}

// Int64 returns the raw token units.
func (a Amount) Int64() int64 {
	return int64(a)
}
