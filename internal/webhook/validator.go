package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw request
// body, keyed with the bot's shared secret.
const SignatureHeader = "X-Max-Signature"

// Validator checks that an inbound push originated from the platform.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Sign computes the signature the platform is expected to send for body.
func (v *Validator) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate reports whether the request signature matches the body.
// A missing header, malformed hex, or mismatch all return false; it
// never panics, whatever the input.
func (v *Validator) Validate(header http.Header, body []byte) bool {
	provided := header.Get(SignatureHeader)
	if provided == "" {
		return false
	}

	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
