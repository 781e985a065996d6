package webhook

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcceptsCorrectSignature(t *testing.T) {
	v := NewValidator("shared-secret")
	body := []byte(`{"update_id":1}`)

	h := http.Header{}
	h.Set(SignatureHeader, v.Sign(body))

	assert.True(t, v.Validate(h, body))
}

func TestValidateRejectsMissingHeader(t *testing.T) {
	v := NewValidator("shared-secret")
	assert.False(t, v.Validate(http.Header{}, []byte("body")))
}

func TestValidateRejectsMalformedSignature(t *testing.T) {
	v := NewValidator("shared-secret")
	h := http.Header{}
	h.Set(SignatureHeader, "not-hex!!")
	assert.False(t, v.Validate(h, []byte("body")))
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	signer := NewValidator("attacker-secret")
	v := NewValidator("shared-secret")

	body := []byte("body")
	h := http.Header{}
	h.Set(SignatureHeader, signer.Sign(body))

	assert.False(t, v.Validate(h, body))
}

func TestValidateRejectsTamperedBody(t *testing.T) {
	v := NewValidator("shared-secret")
	h := http.Header{}
	h.Set(SignatureHeader, v.Sign([]byte("original")))

	assert.False(t, v.Validate(h, []byte("tampered")))
}
