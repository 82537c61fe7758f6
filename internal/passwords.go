package internal

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// passwordAlphabet excludes characters that tend to get mangled when a
// password is relayed through shells or chat transcripts.
const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789-_"

// GeneratedPasswordLength is the length of ephemeral bundle passwords minted
// when the caller supplies none.
const GeneratedPasswordLength = 32

// GeneratePassword returns a cryptographically random password of n
// characters from passwordAlphabet.
func GeneratePassword(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("password length must be positive, got %d", n)
	}
	max := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		buf[i] = passwordAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
