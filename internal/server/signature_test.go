package server

import (
	"crypto/subtle"
	"strings"
	"testing"
)

func TestExpectedSignature_KnownVector(t *testing.T) {
	got := ExpectedSignature([]byte("key"), []byte("The quick brown fox jumps over the lazy dog"))
	want := "sha1=de7c9b85b8b78aa6bc8a7a36f70a90701c9db4d9"
	if got != want {
		t.Errorf("ExpectedSignature() = %q, want %q", got, want)
	}
}

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/master"}`)
	secret := "test-secret"
	signature := MakeTestSignature(payload, secret)

	if !VerifySignature([]byte(secret), payload, signature) {
		t.Error("Valid signature was rejected")
	}
}

func TestVerifySignature_Invalid(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/master"}`)
	signature := MakeTestSignature(payload, "wrong-secret")

	if VerifySignature([]byte("test-secret"), payload, signature) {
		t.Error("Invalid signature was accepted")
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	signature := MakeTestSignature([]byte(`{"ref":"refs/heads/master"}`), "test-secret")

	if VerifySignature([]byte("test-secret"), []byte(`{"ref":"refs/heads/evil"}`), signature) {
		t.Error("Signature for a different body was accepted")
	}
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	if VerifySignature([]byte("test-secret"), []byte(`{}`), "") {
		t.Error("Empty signature was accepted")
	}
}

func TestVerifySignature_MalformedSignature(t *testing.T) {
	payload := []byte(`{}`)
	valid := MakeTestSignature(payload, "test-secret")

	tests := []struct {
		name      string
		signature string
	}{
		{"wrong prefix", "sha256=" + strings.TrimPrefix(valid, SignaturePrefix)},
		{"prefix only", SignaturePrefix},
		{"truncated", valid[:len(valid)-1]},
		{"extended", valid + "0"},
		{"much longer", valid + strings.Repeat("f", 4096)},
		{"digest without prefix", strings.TrimPrefix(valid, SignaturePrefix)},
		{"uppercase", strings.ToUpper(valid)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifySignature([]byte("test-secret"), payload, tt.signature) {
				t.Errorf("Malformed signature %q was accepted", tt.signature)
			}
		})
	}
}

func TestConstantTimeEqual(t *testing.T) {
	tests := []struct {
		actual, expected string
		want             bool
	}{
		{"abc", "abc", true},
		{"abd", "abc", false},
		{"ab", "abc", false},
		{"abcd", "abc", false},
		{"", "abc", false},
		{"", "", true},
		{"x", "", false},
	}

	for _, tt := range tests {
		if got := constantTimeEqual(tt.actual, tt.expected); got != tt.want {
			t.Errorf("constantTimeEqual(%q, %q) = %v, want %v", tt.actual, tt.expected, got, tt.want)
		}
	}
}

// TestConstantTimeEqual_ComparesFullLength checks that every candidate, with a
// mismatch at any offset or of any length, costs one comparison over
// len(expected) bytes.
func TestConstantTimeEqual_ComparesFullLength(t *testing.T) {
	expected := ExpectedSignature([]byte("test-secret"), []byte(`{"ref":"refs/heads/master"}`))

	var calls, lastLen int
	compareBytes = func(x, y []byte) int {
		calls++
		if len(x) != len(y) {
			t.Errorf("Compared buffers of different lengths %d and %d", len(x), len(y))
		}
		lastLen = len(x)
		return subtle.ConstantTimeCompare(x, y)
	}
	t.Cleanup(func() { compareBytes = subtle.ConstantTimeCompare })

	var candidates []string
	for i := 0; i < len(expected); i++ {
		b := []byte(expected)
		b[i] ^= 0x01
		candidates = append(candidates, string(b))
	}
	candidates = append(candidates,
		"",
		expected[:1],
		expected[:len(expected)-1],
		expected+"0",
		expected+strings.Repeat("f", 4096),
	)

	for _, c := range candidates {
		calls = 0
		if constantTimeEqual(c, expected) {
			t.Errorf("constantTimeEqual(%q) = true, want false", c)
		}
		if calls != 1 || lastLen != len(expected) {
			t.Errorf("constantTimeEqual(%q) made %d comparisons over %d bytes, want 1 over %d", c, calls, lastLen, len(expected))
		}
	}
}
