package generator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type RefGenerator struct{}

func NewRefGenerator() *RefGenerator {
	return &RefGenerator{}
}

// GenerateTransactionRef builds a merchant-scoped payment transaction
// reference. The timestamp prefix keeps refs sortable in the provider
// dashboard; the random suffix makes them unguessable.
func (g *RefGenerator) GenerateTransactionRef(merchantID string) (string, error) {
	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("TXN-%s-%d-%s", merchantID, time.Now().UTC().Unix(), hex.EncodeToString(randomBytes)), nil
}
