// Package distance resolves road distance between an address and a branch,
// caching results by a hash of the normalized endpoint pair.
package distance

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"

	"github.com/fescii/Stahla-sub005/internal/catalog"
)

// KeyPrefix is the key family for cached distance records.
const KeyPrefix = "distance:"

// Key derives the cache key for an (origin, destination) pair. Both
// endpoints are normalized first so formatting differences collapse to one
// entry; the pair is order-sensitive.
func Key(origin, destination string) string {
	data := catalog.NormalizeAddress(origin) + "\x00" + catalog.NormalizeAddress(destination)
	sum := xxh3.Hash128([]byte(data)).Bytes()
	return KeyPrefix + hex.EncodeToString(sum[:])
}
