// Package codes generates and recognizes artifact access codes.
package codes

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// Length is the fixed number of characters in an access code.
	Length = 8
	// Alphabet holds the characters a code is drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate draws a uniformly random code from crypto/rand.
func Generate() (string, error) {
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Valid reports whether s has the exact shape of an access code. Lower-case
// input is rejected so ordinary chat words are not mistaken for codes.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
