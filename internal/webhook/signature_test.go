package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature_KnownVectors(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		payload   string
		signature string
	}{
		{
			name:      "github docs vector",
			secret:    "It's a Secret to Everybody",
			payload:   "Hello, World!",
			signature: "sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17",
		},
		{
			// The body is a JSON string containing escaped JSON, so the
			// signed bytes include the surrounding quotes and backslashes.
			name:      "json string payload",
			secret:    "VerySecure",
			payload:   `"{\"test\": 1}"`,
			signature: "sha256=f5cf34a2c036452fd80ced7508e5c231b1afa5c05713eaf87610499ee23f471a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature([]byte(tt.secret), []byte(tt.payload), tt.signature)
			assert.NoError(t, err)
		})
	}
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	secret := []byte("shared-secret")
	payload := []byte(`{"event": "push", "ref": "refs/heads/main"}`)

	sig := formatSignature(computeExpectedSignature(secret, payload))
	require.NoError(t, VerifySignature(secret, payload, sig))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"test": 1}`)
	sig := formatSignature(computeExpectedSignature([]byte("VerySecure"), payload))

	err := VerifySignature([]byte("NotTheSecret"), payload, sig)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	secret := []byte("VerySecure")
	sig := formatSignature(computeExpectedSignature(secret, []byte(`{"test": 1}`)))

	err := VerifySignature(secret, []byte(`{"test": 2}`), sig)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifySignature_SingleHexDigitFlip(t *testing.T) {
	secret := []byte("VerySecure")
	payload := []byte(`{"test": 1}`)
	good := formatSignature(computeExpectedSignature(secret, payload))

	// Flip the last hex digit
	bad := []byte(good)
	if bad[len(bad)-1] == 'a' {
		bad[len(bad)-1] = 'b'
	} else {
		bad[len(bad)-1] = 'a'
	}

	err := VerifySignature(secret, payload, string(bad))
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifySignature_Malformed(t *testing.T) {
	secret := []byte("VerySecure")
	payload := []byte(`{"test": 1}`)

	tests := []struct {
		name      string
		signature string
		wantErr   error
	}{
		{"empty", "", ErrMalformedSignature},
		{"shorter than prefix", "sha", ErrMalformedSignature},
		{"prefix only", "sha256=", ErrSignatureMismatch},
		{"wrong prefix", "sha1=757107ea0eb2509fc211221cce984b8a", ErrMalformedSignature},
		{"missing prefix", "757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17", ErrMalformedSignature},
		{"invalid utf8", "sha256=\xff\xfe", ErrMalformedSignature},
		{"non-hex digest", "sha256=not-hex-at-all-zzzzzzzzzzzzzzzzzzzz", ErrInvalidHex},
		{"odd hex length", "sha256=abc", ErrInvalidHex},
		{"truncated digest", "sha256=757107ea", ErrSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(secret, payload, tt.signature)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifySignature_DigestOfWrongLength(t *testing.T) {
	// A valid-hex digest that is not 32 bytes must never verify, and must
	// not panic inside the comparison.
	err := VerifySignature([]byte("VerySecure"), []byte(`{"test": 1}`), "sha256=deadbeef")
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifySignature_EmptyPayload(t *testing.T) {
	secret := []byte("shared-secret")
	sig := formatSignature(computeExpectedSignature(secret, nil))
	assert.NoError(t, VerifySignature(secret, nil, sig))
}
