package federation

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Provider is the configured identity provider: its discovered endpoints,
// the relying-party OAuth2 configuration, and the ID-token verifier.
type Provider struct {
	conf         *oauth2.Config
	oidcProvider *oidc.Provider
	verifier     *oidc.IDTokenVerifier
}

// Discover queries the issuer's OIDC discovery document and builds a
// Provider for cfg. cfg must have passed Validate.
func Discover(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	p, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover provider %q: %w", cfg.Issuer, err)
	}
	return &Provider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     p.Endpoint(),
			RedirectURL:  cfg.CallbackURL(),
			Scopes:       cfg.Scopes,
		},
		oidcProvider: p,
		verifier:     p.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthorizationURL builds the provider authorization URL for tx. Only the
// derived challenge travels; the verifier never appears in a URL.
func (p *Provider) AuthorizationURL(tx *Transaction) string {
	return p.conf.AuthCodeURL(tx.State,
		oauth2.SetAuthURLParam("code_challenge", tx.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oidc.Nonce(tx.Nonce),
	)
}

// Exchange redeems code for tokens, presenting verifier so the provider can
// recompute the original challenge, and validates the returned ID token:
// signature and issuer/audience via the discovery-backed verifier, then a
// constant-time nonce comparison. Every validation failure fails closed.
//
// After validation it attempts the optional user-info call; that call's
// failure is logged and swallowed; the ID-token claims are sufficient.
func (p *Provider) Exchange(ctx context.Context, code, verifier, expectedNonce string, logger *slog.Logger) (Claims, *FlowError) {
	token, err := p.conf.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier),
	)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			// The token endpoint answered and said no.
			return Claims{}, flowErr(KindTokenValidationFailed, err)
		}
		return Claims{}, flowErr(KindUpstreamUnavailable, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Claims{}, flowErrf(KindTokenValidationFailed, "no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Claims{}, flowErr(KindTokenValidationFailed, fmt.Errorf("id_token verification: %w", err))
	}
	if subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(expectedNonce)) != 1 {
		return Claims{}, flowErrf(KindTokenValidationFailed, "nonce mismatch")
	}
	if idToken.Subject == "" {
		return Claims{}, flowErrf(KindTokenValidationFailed, "id_token has empty subject")
	}

	claims := Claims{Subject: idToken.Subject}
	var profile struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := idToken.Claims(&profile); err == nil {
		claims.Name = profile.Name
		claims.Email = profile.Email
	}
	var raw map[string]any
	if err := idToken.Claims(&raw); err == nil {
		claims.Raw = raw
	}

	p.enrich(ctx, token, &claims, logger)
	return claims, nil
}

// enrich merges user-info fields into claims, best-effort.
func (p *Provider) enrich(ctx context.Context, token *oauth2.Token, claims *Claims, logger *slog.Logger) {
	info, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		if logger != nil {
			logger.Debug("user-info fetch failed, continuing with id_token claims", "err", err)
		}
		return
	}
	var profile struct {
		Name string `json:"name"`
	}
	_ = info.Claims(&profile)
	claims.merge(profile.Name, info.Email)
}
