package voucher

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	// maxCodeAttempts bounds re-rolls on a code collision.
	maxCodeAttempts = 100
)

// CodeGenerator returns a new voucher code with the given prefix.
type CodeGenerator func(prefix string) (string, error)

// RandomCode is the default CodeGenerator: prefix followed by eight
// characters drawn uniformly from A-Z and 0-9.
func RandomCode(prefix string) (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate voucher code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}
