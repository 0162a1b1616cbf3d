package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
)

const (
	SignaturePrefix = "sha1="
	SignatureHeader = "X-Hub-Signature"
)

// ExpectedSignature returns the X-Hub-Signature value GitHub sends for body.
func ExpectedSignature(secret, body []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies the HMAC-SHA1 signature from a GitHub webhook.
// A missing header never verifies.
func VerifySignature(secret, body []byte, header string) bool {
	if header == "" {
		return false
	}
	return constantTimeEqual(header, ExpectedSignature(secret, body))
}

// compareBytes is swapped in tests to observe what constantTimeEqual compares.
var compareBytes = subtle.ConstantTimeCompare

// constantTimeEqual compares actual against expected in time that depends
// only on len(expected). actual is copied into a buffer of expected's length
// so a short or long candidate does not leak through an early return.
func constantTimeEqual(actual, expected string) bool {
	buf := make([]byte, len(expected))
	copy(buf, actual)

	sameContent := compareBytes(buf, []byte(expected))
	sameLength := subtle.ConstantTimeEq(int32(len(actual)), int32(len(expected)))
	return sameContent&sameLength == 1
}
