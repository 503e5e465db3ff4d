// Package preview drives the external preview backend: HMAC-signed
// provisioning calls plus the session state machine that tracks each
// preview schema from pending to invalidated.
package preview

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Headers carried by every request to the preview backend.
const (
	HeaderTimestamp = "X-Internal-Timestamp"
	HeaderSignature = "X-Internal-Signature"
)

// Signer computes the internal-API signature for outbound preview calls.
// The signed string is METHOD + ":" + PATH + ":" + BODY + ":" + TIMESTAMP
// where PATH is the URL path only and TIMESTAMP is millisecond wall clock.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the lowercase hex HMAC-SHA256 over the canonical string.
// body is the exact request payload, empty for bodyless requests.
func (s *Signer) Sign(method, path, body string, timestampMillis int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(method))
	mac.Write([]byte(":"))
	mac.Write([]byte(path))
	mac.Write([]byte(":"))
	mac.Write([]byte(body))
	mac.Write([]byte(":"))
	mac.Write([]byte(strconv.FormatInt(timestampMillis, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the canonical string in
// constant time. Receivers additionally enforce a timestamp skew window.
func (s *Signer) Verify(method, path, body string, timestampMillis int64, signature string) bool {
	want := s.Sign(method, path, body, timestampMillis)
	return hmac.Equal([]byte(want), []byte(signature))
}
