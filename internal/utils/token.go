package utils

import (
	"crypto/rand"
	"fmt"
)

// base34 drops the easily confused I and O
const tokenAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// largest multiple of the alphabet size that fits a byte, to keep the draw unbiased
const tokenMaxByte = 256 - 256%len(tokenAlphabet)

// NewToken returns a random token of the given length for the local API.
func NewToken(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid token length: %d", length)
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= tokenMaxByte {
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

// MaskSecret keeps the first four characters of s for display.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + "*****"
}
