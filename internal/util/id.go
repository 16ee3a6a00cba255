package util

import (
	"crypto/rand"
	"encoding/base64"
)

// NewToken returns an unguessable URL-safe token of 32 random bytes.
func NewToken(prefix string) string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	token := base64.RawURLEncoding.EncodeToString(bytes)
	if prefix == "" {
		return token
	}
	return prefix + "_" + token
}
