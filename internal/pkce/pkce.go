// Package pkce implements Proof Key for Code Exchange verification
// (RFC 7636). It is pure: no storage, no clock, no side effects.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Code challenge transforms defined by RFC 7636.
const (
	MethodPlain = "plain"
	MethodS256  = "S256"
)

// Supported reports whether method is one of the transforms this server
// accepts. An empty method is treated as "plain" per the RFC default.
func Supported(method string) bool {
	return method == "" || method == MethodPlain || method == MethodS256
}

// Verify reports whether codeVerifier proves possession of the secret
// behind codeChallenge under the given transform. Comparison is
// constant time in both branches to avoid timing side channels. An
// unknown method never verifies; rejecting it earlier is the caller's
// concern.
func Verify(codeVerifier, codeChallenge, method string) bool {
	switch method {
	case MethodPlain, "":
		return subtle.ConstantTimeCompare([]byte(codeVerifier), []byte(codeChallenge)) == 1
	case MethodS256:
		sum := sha256.Sum256([]byte(codeVerifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(codeChallenge)) == 1
	default:
		return false
	}
}
