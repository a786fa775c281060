package services

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKeyID = errors.New("invalid key id")

// TokenSignerFunc signs a claim set and returns the compact token string.
type TokenSignerFunc func(claims jwt.Claims) (string, error)

// JSONWebKey is one entry of the JWKS discovery document.
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JSONWebKeySet is the JWKS discovery document body.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// TokenSigner turns claim sets into signed compact tokens. Key material
// is provisioned at startup; the signer does not manage rotation.
type TokenSigner struct {
	keys       map[string]TokenSignerFunc
	defaultKid string
	publicKeys []JSONWebKey
}

// NewTokenSigner creates an empty signer; add at least one key before use.
func NewTokenSigner() *TokenSigner {
	return &TokenSigner{
		keys: make(map[string]TokenSignerFunc),
	}
}

// AddHMACSigner registers an HS256 signing key under the given kid. The
// first registered key becomes the default.
func (s *TokenSigner) AddHMACSigner(kid, secretKey string) {
	s.keys[kid] = func(claims jwt.Claims) (string, error) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		token.Header["kid"] = kid

		signed, err := token.SignedString([]byte(secretKey))
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, nil
	}
	if s.defaultKid == "" {
		s.defaultKid = kid
	}
}

// AddRSASigner registers an RS256 signing key under the given kid and
// exposes its public half via JWKS. The first registered key becomes
// the default.
func (s *TokenSigner) AddRSASigner(kid string, key *rsa.PrivateKey) {
	s.keys[kid] = func(claims jwt.Claims) (string, error) {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = kid

		signed, err := token.SignedString(key)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, nil
	}
	if s.defaultKid == "" {
		s.defaultKid = kid
	}

	pub := key.Public().(*rsa.PublicKey)
	s.publicKeys = append(s.publicKeys, JSONWebKey{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	})
}

// Sign signs the claims with the requested key, or the default key when
// kid is empty.
func (s *TokenSigner) Sign(claims jwt.Claims, kid string) (string, error) {
	if kid == "" {
		kid = s.defaultKid
	}
	signer, ok := s.keys[kid]
	if !ok {
		return "", ErrInvalidKeyID
	}
	return signer(claims)
}

// JWKS returns the public key set for the discovery endpoint. HMAC keys
// are never exposed.
func (s *TokenSigner) JWKS() JSONWebKeySet {
	keys := make([]JSONWebKey, len(s.publicKeys))
	copy(keys, s.publicKeys)
	return JSONWebKeySet{Keys: keys}
}
