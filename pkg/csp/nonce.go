package csp

import (
	"crypto/rand"
	"encoding/base64"
)

// Nonce returns a cryptographically random base64 string suitable for
// 'nonce-' sources. CSP3 wants at least 128 bits from a secure RNG;
// 18 bytes gives 144.
func Nonce() string {
	var b [18]byte
	rand.Read(b[:])
	return base64.StdEncoding.EncodeToString(b[:])
}

// NonceToken quotes a nonce as a source-list token.
func NonceToken(nonce string) string {
	return "'nonce-" + nonce + "'"
}
