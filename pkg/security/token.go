package security

import (
	"crypto/rand"
	"errors"
	"fmt"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// rejectAbove is the largest multiple of len(tokenAlphabet) below 256; bytes
// at or above it are discarded so every symbol is equally likely.
const rejectAbove = 256 - 256%len(tokenAlphabet)

// RandomToken returns an unguessable alphanumeric token, used for customer
// order tracking links.
func RandomToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
