// Package guest issues and checks the bearer tokens that let anonymous test
// takers reach their own attempt.
package guest

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// TokenBytes of entropy; hex-encoded the token is 64 characters. Tokens are
// random, never derived from attempt or quiz data.
const TokenBytes = 32

type Issuer struct {
	ttl time.Duration
}

func NewIssuer(ttl time.Duration) *Issuer {
	return &Issuer{ttl: ttl}
}

// Issue mints a fresh token and its expiry.
func (i *Issuer) Issue(now time.Time) (token string, expiresAt time.Time, err error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	return hex.EncodeToString(b), now.Add(i.ttl), nil
}

// Match reports whether presented equals stored, in constant time.
func Match(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// Expired reports whether the token's validity window has passed. An expired
// token still lets its holder read the attempt it was issued for; writes and
// re-issuing require an unexpired one.
func Expired(expiresAt time.Time, now time.Time) bool {
	return !expiresAt.IsZero() && now.After(expiresAt)
}
