package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// TokenAlphabet is the character set used for correlation tokens.
const TokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomToken returns a random alphanumeric string of the given length drawn
// uniformly from TokenAlphabet.
func RandomToken(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("token length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(TokenAlphabet)))
	token := make([]byte, length)
	for i := range token {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random token: %w", err)
		}
		token[i] = TokenAlphabet[n.Int64()]
	}

	return string(token), nil
}
