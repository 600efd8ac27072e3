package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryOf decodes the exp claim of a JWT without verifying its signature.
// The client cannot verify it anyway (the signing key lives server-side);
// the claim is only used to decide when to refresh. ok is false when the
// token cannot be decoded or carries no exp claim.
func ExpiryOf(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	t, err := claims.GetExpirationTime()
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.Time, true
}

// IsExpired reports whether token is expired at now, treating tokens that
// expire within skew as already expired. Malformed tokens and tokens
// without an exp claim count as expired; it never panics.
func IsExpired(token string, now time.Time, skew time.Duration) bool {
	exp, ok := ExpiryOf(token)
	if !ok {
		return true
	}
	return !exp.After(now.Add(skew))
}
