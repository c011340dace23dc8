package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
)

// SignatureVerifier checks webhook body signatures. The provider signs
// HMAC-SHA256 over payload+route keyed by a rotating salt, and appends the
// salt index after a "###" separator so the receiver knows which salt to use.
type SignatureVerifier struct {
	salts map[string]string
}

func NewSignatureVerifier(salts map[string]string) *SignatureVerifier {
	return &SignatureVerifier{salts: salts}
}

func (v *SignatureVerifier) Verify(payload []byte, route, header string) error {
	parts := strings.SplitN(header, "###", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return domainErrors.ErrInvalidSignature
	}

	salt, ok := v.salts[parts[1]]
	if !ok {
		return domainErrors.ErrInvalidSignature
	}

	provided, err := hex.DecodeString(parts[0])
	if err != nil {
		return domainErrors.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write(payload)
	mac.Write([]byte(route))

	if !hmac.Equal(provided, mac.Sum(nil)) {
		return domainErrors.ErrInvalidSignature
	}
	return nil
}

// Sign produces the header value for a payload, the counterpart of Verify.
func (v *SignatureVerifier) Sign(payload []byte, route, saltIndex string) (string, bool) {
	salt, ok := v.salts[saltIndex]
	if !ok {
		return "", false
	}

	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write(payload)
	mac.Write([]byte(route))
	return hex.EncodeToString(mac.Sum(nil)) + "###" + saltIndex, true
}
