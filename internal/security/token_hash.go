package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashRefreshToken is the at-rest form of a refresh token value. Only the
// peppered digest is persisted; a leaked credential-store row is not a
// usable token.
func HashRefreshToken(token, pepper string) string {
	sum := sha256.Sum256([]byte(token + pepper))
	return hex.EncodeToString(sum[:])
}

// DeriveFingerprint prefers the client-supplied fingerprint and otherwise
// falls back to a digest of the client metadata the request does carry.
func DeriveFingerprint(explicit, userAgent, ip string) string {
	if explicit != "" {
		return explicit
	}
	if userAgent == "" && ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(userAgent + "|" + ip))
	return hex.EncodeToString(sum[:16])
}
