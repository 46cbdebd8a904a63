package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignatureHeader and TimestampHeader are set on every delivery.
const (
	SignatureHeader = "X-Webhook-Signature"
	TimestampHeader = "X-Webhook-Timestamp"
)

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureValue formats the signature the way it appears on the wire.
func SignatureValue(secret string, body []byte) string {
	return "sha256=" + Sign(secret, body)
}

// Verify checks a received signature header against body in constant time.
// Both "sha256=<hex>" and bare hex are accepted.
func Verify(secret string, body []byte, header string) bool {
	received := strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	if len(received) != sha256.Size*2 {
		return false
	}
	expected := Sign(secret, body)
	return subtle.ConstantTimeCompare([]byte(received), []byte(expected)) == 1
}
