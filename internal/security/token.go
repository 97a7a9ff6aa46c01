package security

import (
	"encoding/hex"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a stable, non-reversible label for a token, safe to log and
// to store in the audit trail.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// SubjectHint returns the "sub" claim when the token happens to be a JWT.
// The signature is NOT verified; the value is only a label for telemetry and
// must never drive an authorization decision.
func SubjectHint(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
