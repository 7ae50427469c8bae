package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// SignHMAC returns "sha256=<hex>" of HMAC-SHA256 over body.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a "sha256=<hex>" signature over the raw request body
// using a constant-time comparison. The body must be the exact bytes
// received; re-serializing a parsed payload breaks the signature.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	provided = strings.TrimPrefix(provided, signaturePrefix)
	sig, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), sig)
}

// TokenEquals compares a shared webhook token in constant time.
func TokenEquals(secret, provided string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) == 1
}
