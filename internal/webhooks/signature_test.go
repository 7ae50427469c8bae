package webhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerifyHMAC(t *testing.T) {
	body := []byte(`{"eventType":"RESERVATION_CREATED","data":{"confirmationNumber":"C1"}}`)
	sig := SignHMAC("topsecret", body)

	assert.True(t, VerifyHMAC("topsecret", body, sig))
	assert.True(t, VerifyHMAC("topsecret", body, SignHMAC("topsecret", body)))
}

func TestVerifyHMACRejectsAlteredBody(t *testing.T) {
	body := []byte(`{"eventType":"RESERVATION_CREATED"}`)
	sig := SignHMAC("topsecret", body)

	altered := append([]byte{}, body...)
	altered[0] = '['
	assert.False(t, VerifyHMAC("topsecret", altered, sig))
}

func TestVerifyHMACRejectsWrongSecretAndGarbage(t *testing.T) {
	body := []byte(`{}`)
	sig := SignHMAC("right", body)

	assert.False(t, VerifyHMAC("wrong", body, sig))
	assert.False(t, VerifyHMAC("right", body, "sha256=zznothex"))
	assert.False(t, VerifyHMAC("right", body, ""))
}

func TestVerifyHMACAcceptsUnprefixedHex(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignHMAC("s", body)
	assert.True(t, VerifyHMAC("s", body, sig[len("sha256="):]))
}

func TestTokenEquals(t *testing.T) {
	assert.True(t, TokenEquals("tok-1", "tok-1"))
	assert.False(t, TokenEquals("tok-1", "tok-2"))
	assert.False(t, TokenEquals("tok-1", ""))
}
