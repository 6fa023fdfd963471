package catalog

import "strings"

// NormalizeAddress casefolds an address and collapses internal whitespace so
// equal addresses produce equal cache keys.
func NormalizeAddress(addr string) string {
	return strings.Join(strings.Fields(strings.ToLower(addr)), " ")
}

// NormalizeID lowercases and trims an identifier.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
