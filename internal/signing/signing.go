// Package signing binds inline button payloads to the user they were issued
// to, so a forwarded or crafted callback cannot be replayed by someone else.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// JoinPrefix starts every "I joined" callback payload.
const JoinPrefix = "check_join:"

// sigLen keeps payloads inside Telegram's 64 byte callback_data limit.
const sigLen = 16

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the truncated hex signature of code for userID.
func (s *Signer) Sign(code string, userID int64) string {
	mac := hmac.New(sha256.New, s.secret)
	payload := fmt.Sprintf("%s:%d", code, userID)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))[:sigLen]
}

// Validate compares the provided signature with the expected.
func (s *Signer) Validate(code string, userID int64, signature string) bool {
	expected := s.Sign(code, userID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// JoinCallback builds the payload "check_join:<code>:<sig>".
func (s *Signer) JoinCallback(code string, userID int64) string {
	return JoinPrefix + code + ":" + s.Sign(code, userID)
}

// ParseJoinCallback extracts the code from a payload built by JoinCallback
// for the same user.
func (s *Signer) ParseJoinCallback(data string, userID int64) (string, bool) {
	rest, ok := strings.CutPrefix(data, JoinPrefix)
	if !ok {
		return "", false
	}
	code, sig, ok := strings.Cut(rest, ":")
	if !ok || code == "" {
		return "", false
	}
	if !s.Validate(code, userID, sig) {
		return "", false
	}
	return code, true
}
