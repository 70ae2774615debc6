// Package licensekey derives reproducible license keys from billing
// checkout attributes.
//
// Paddle does not allow arbitrary metadata on its resources, so there is no
// place to store a Keygen license id against a subscription. Instead the key
// itself is a pure function of the customer email and the checkout id: any
// later webhook for the same subscription re-derives the same key and can
// address the license directly, with no mapping table anywhere.
package licensekey

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

const (
	groupSize  = 4
	groupCount = 5
)

// Derive computes the license key for an (email, checkout id) pair.
//
// The key is the first 20 hex characters of SHA-1("email-checkoutID"),
// split into five 4-character groups joined with hyphens, e.g.
// "68cb-b005-be5e-500a-3e5e". Deterministic: identical inputs always
// produce the identical key.
func Derive(email, checkoutID string) string {
	sum := sha1.Sum([]byte(email + "-" + checkoutID))
	digest := hex.EncodeToString(sum[:])[:groupSize*groupCount]

	groups := make([]string, 0, groupCount)
	for i := 0; i < len(digest); i += groupSize {
		groups = append(groups, digest[i:i+groupSize])
	}
	return strings.Join(groups, "-")
}
