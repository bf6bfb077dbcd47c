package upstream

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// OIDCAuthenticator implements Authenticator against a generic upstream
// OpenID Connect provider, using github.com/coreos/go-oidc/v3 for discovery
// and ID-token verification, the same library the teacher module depends on
// for its own OIDC handling.
type OIDCAuthenticator struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
}

// NewOIDCAuthenticator discovers issuer's configuration and builds an
// OIDCAuthenticator for it.
func NewOIDCAuthenticator(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("upstream: discovering OIDC provider %q: %w", issuer, err)
	}

	return &OIDCAuthenticator{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// StartLogin returns the upstream provider's authorization URL.
func (a *OIDCAuthenticator) StartLogin(_ context.Context, state string) (string, error) {
	return a.config.AuthCodeURL(state), nil
}

type oidcClaims struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

// HandleCallback exchanges the code and verifies the returned ID token.
func (a *OIDCAuthenticator) HandleCallback(ctx context.Context, query map[string]string) (UserInfo, error) {
	code := query["code"]
	if code == "" {
		return UserInfo{}, fmt.Errorf("upstream: missing code in OIDC callback")
	}

	oauthToken, err := a.config.Exchange(ctx, code)
	if err != nil {
		return UserInfo{}, fmt.Errorf("upstream: exchanging OIDC code: %w", err)
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return UserInfo{}, fmt.Errorf("upstream: token response missing id_token")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return UserInfo{}, fmt.Errorf("upstream: verifying id_token: %w", err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return UserInfo{}, fmt.Errorf("upstream: decoding id_token claims: %w", err)
	}

	return UserInfo{
		Username: claims.Subject,
		UserMetadata: token.UserMetadata{
			Name:  claims.Name,
			Email: claims.Email,
		},
	}, nil
}
