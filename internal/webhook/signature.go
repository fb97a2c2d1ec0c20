package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// signaturePrefix identifies the digest algorithm in the signature header,
// e.g. "sha256=3a8f...". Only HMAC-SHA256 is supported.
const signaturePrefix = "sha256="

// Internal verification failure kinds. They are logged server-side for
// diagnostics but always collapse to a single opaque 401 at the HTTP
// boundary so remote callers cannot tell which step failed.
var (
	// ErrMalformedSignature is returned when the header value is not valid
	// text or is too short to contain the algorithm prefix.
	ErrMalformedSignature = errors.New("malformed signature header")

	// ErrInvalidHex is returned when the digest portion fails hex decoding.
	ErrInvalidHex = errors.New("signature is not valid hexadecimal")

	// ErrSignatureMismatch is returned when decoding succeeded but the
	// constant-time comparison failed.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// VerifySignature checks an HMAC-SHA256 signature against the raw request
// body. The payload bytes are hashed verbatim; any re-serialization before
// calling this invalidates the signature.
//
// The comparison uses hmac.Equal (constant-time) to prevent timing attacks.
func VerifySignature(secret, payload []byte, signature string) error {
	if !utf8.ValidString(signature) {
		return ErrMalformedSignature
	}
	if len(signature) < len(signaturePrefix) || !strings.HasPrefix(signature, signaturePrefix) {
		return ErrMalformedSignature
	}

	claimed, err := hex.DecodeString(signature[len(signaturePrefix):])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, claimed) {
		return ErrSignatureMismatch
	}

	return nil
}

// computeExpectedSignature computes the hex-encoded HMAC-SHA256 of payload.
// Used by tests.
func computeExpectedSignature(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// formatSignature prefixes a hex digest in X-Hub-Signature-256 header format.
func formatSignature(hexSig string) string {
	return signaturePrefix + hexSig
}
