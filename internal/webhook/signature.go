// Package webhook implements the authenticity check for inbound relay
// deliveries. The relay signs every request with a shared secret; nothing
// past this check may run until the signature matches.
//
// Signed payload: the exact raw request body bytes, unmodified. The header
// value is "sha256=" followed by the lowercase hex HMAC-SHA256 of those
// bytes. Verification is a pure function with no side effects; the caller
// owns the AUTH_FAIL audit event.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader is the request header carrying the relay's signature.
const SignatureHeader = "X-Relay-Signature"

// signaturePrefix names the digest algorithm in the header value.
const signaturePrefix = "sha256="

// ErrBadSignature is returned when the signature header is missing,
// malformed, or does not match the request body.
var ErrBadSignature = errors.New("bad signature")

// Sign computes the signature header value for body. It exists for the
// relay simulator and for tests; the server itself only verifies.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks that header is a valid signature of body under secret.
// Comparison is constant time. An empty secret is a programming error at
// the call site (startup validation rejects it), not a request condition.
func Verify(secret, body []byte, header string) error {
	if !strings.HasPrefix(header, signaturePrefix) {
		return ErrBadSignature
	}
	claimed, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if !hmac.Equal(claimed, expected) {
		return ErrBadSignature
	}
	return nil
}
