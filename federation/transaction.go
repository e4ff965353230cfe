// Package federation implements the PKCE-protected OpenID Connect
// authorization-code flow against a single identity provider: per-attempt
// transaction state, the redirect out, callback verification, token
// exchange, account reconciliation, and session issuance.
package federation

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// tokenEntropy is the number of random bytes behind each generated value.
// 32 bytes yields a 43-character RawURLEncoding string, which satisfies the
// RFC 7636 verifier minimum and leaves state/nonce collisions cryptographically
// negligible.
const tokenEntropy = 32

// Transaction holds the per-attempt secrets of one login flow.
//
// All four values are generated together and never reused. Only Challenge
// travels to the provider in the authorization URL; Verifier stays sealed in
// the browser's transaction cookie until the callback presents it for the
// token exchange.
type Transaction struct {
	// Verifier is the PKCE code verifier.
	Verifier string
	// Challenge is the S256 code challenge derived from Verifier.
	Challenge string
	// Nonce is bound into the ID token and checked after the exchange.
	Nonce string
	// State is the anti-CSRF token round-tripped through the redirect.
	State string
}

// BeginTransaction generates a fresh Transaction from crypto/rand.
func BeginTransaction() (*Transaction, error) {
	verifier, err := randomToken()
	if err != nil {
		return nil, err
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, err
	}
	state, err := randomToken()
	if err != nil {
		return nil, err
	}
	return &Transaction{
		Verifier:  verifier,
		Challenge: deriveChallenge(verifier),
		Nonce:     nonce,
		State:     state,
	}, nil
}

// deriveChallenge computes the S256 challenge: base64url(SHA-256(verifier)),
// unpadded.
func deriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	b := make([]byte, tokenEntropy)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
