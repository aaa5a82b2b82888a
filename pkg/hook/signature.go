package hook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
)

// SignatureHeader is the lowercased header carrying the HMAC-SHA1 digest.
const SignatureHeader = "x-hub-signature"

const signaturePrefix = "sha1="

// Sign returns the x-hub-signature value for body under secret, e.g. "sha1=5d61...".
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the x-hub-signature of body under secret.
// The comparison runs in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}
