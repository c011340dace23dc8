package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
)

func testVerifier() *SignatureVerifier {
	return NewSignatureVerifier(map[string]string{
		"1": "salt-one",
		"2": "salt-two",
	})
}

func TestVerifyRoundTrip(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{"transactionRef":"TXN-1","state":"PAYMENT_SUCCESS"}`)

	header, ok := v.Sign(payload, "/payments/webhook", "2")
	require.True(t, ok)

	assert.NoError(t, v.Verify(payload, "/payments/webhook", header))
}

func TestVerifyTamperedPayload(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{"amount":5000}`)

	header, ok := v.Sign(payload, "/payments/webhook", "1")
	require.True(t, ok)

	tampered := []byte(`{"amount":9999}`)
	assert.ErrorIs(t, v.Verify(tampered, "/payments/webhook", header), domainErrors.ErrInvalidSignature)
}

func TestVerifyWrongRoute(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{"amount":5000}`)

	header, ok := v.Sign(payload, "/payments/webhook", "1")
	require.True(t, ok)

	assert.ErrorIs(t, v.Verify(payload, "/payments/other", header), domainErrors.ErrInvalidSignature)
}

func TestVerifyUnknownSaltIndex(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{}`)

	header, ok := v.Sign(payload, "/payments/webhook", "1")
	require.True(t, ok)

	// Same digest, wrong index.
	swapped := header[:len(header)-1] + "9"
	assert.ErrorIs(t, v.Verify(payload, "/payments/webhook", swapped), domainErrors.ErrInvalidSignature)
}

func TestVerifyMalformedHeader(t *testing.T) {
	v := testVerifier()
	payload := []byte(`{}`)

	for _, header := range []string{
		"",
		"deadbeef",
		"###1",
		"deadbeef###",
		"not-hex###1",
	} {
		assert.ErrorIs(t, v.Verify(payload, "/payments/webhook", header), domainErrors.ErrInvalidSignature, "header %q", header)
	}
}

func TestSignUnknownSaltIndex(t *testing.T) {
	v := testVerifier()
	_, ok := v.Sign([]byte(`{}`), "/payments/webhook", "9")
	assert.False(t, ok)
}
