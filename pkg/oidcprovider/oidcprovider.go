// Package oidcprovider implements the minimal authorization-code OIDC
// provider described in spec.md §4.6: no refresh tokens, no PKCE, no
// dynamic client registration, suitable only for federating Gafaelfawr's
// own session with the services it fronts. JWTs are signed and verified
// with go-jose/go-jose/v4, the same library the teacher's authserver
// package (pkg/authserver/oauth, pkg/authserver/server/handlers) uses
// for its JWKS and signed-token handling; the fosite-based full grant
// engine those packages build on is not adopted here (see DESIGN.md) —
// a single-grant, KV-backed code flow does not need its multi-grant
// Storage interface.
package oidcprovider

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/redis/go-redis/v9"

	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/kv"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// Client is one statically configured relying party.
type Client struct {
	ID                string
	Secret            string
	RedirectURIPrefix string
}

// codeTTL is the maximum lifetime of an issued authorization code
// (spec.md §4.6: "TTL = short (≤ 5 minutes)").
const codeTTL = 5 * time.Minute

// codePayload is the KV-stored payload behind an authorization code.
type codePayload struct {
	ClientID        string `json:"client_id"`
	RedirectURI     string `json:"redirect_uri"`
	SessionTokenKey string `json:"session_token_key"`
}

// Provider issues and redeems authorization codes and signs the
// resulting ID tokens.
type Provider struct {
	kv         *kv.Store
	clients    map[string]Client
	signingKey *rsa.PrivateKey
	issuer     string
	algorithm  jose.SignatureAlgorithm
	idTokenTTL time.Duration
	codePrefix string
	now        func() time.Time
}

// New builds a Provider. signingKey must be non-nil. Authorization codes
// are stored under the fixed "gafaelfawr:code:" prefix, a KV namespace
// distinct from ordinary tokens.
func New(kvStore *kv.Store, clients []Client, signingKey *rsa.PrivateKey, issuer string, idTokenTTL time.Duration) *Provider {
	clientMap := make(map[string]Client, len(clients))
	for _, c := range clients {
		clientMap[c.ID] = c
	}
	return &Provider{
		kv:         kvStore,
		clients:    clientMap,
		signingKey: signingKey,
		issuer:     issuer,
		algorithm:  jose.RS256,
		idTokenTTL: idTokenTTL,
		codePrefix: "gafaelfawr:code:",
		now:        time.Now,
	}
}

// LookupClient returns the client configuration for clientID, or false if
// unknown.
func (p *Provider) LookupClient(clientID string) (Client, bool) {
	c, ok := p.clients[clientID]
	return c, ok
}

// IssueCode mints and stores a new authorization code bound to the given
// client, redirect URI, and session token key.
func (p *Provider) IssueCode(ctx context.Context, clientID, redirectURI, sessionTokenKey string) (token.Code, error) {
	code, err := token.NewCode()
	if err != nil {
		return token.Code{}, fmt.Errorf("minting authorization code: %w", err)
	}

	payload := codePayload{ClientID: clientID, RedirectURI: redirectURI, SessionTokenKey: sessionTokenKey}
	blob, err := json.Marshal(payload)
	if err != nil {
		return token.Code{}, fmt.Errorf("encoding authorization code payload: %w", err)
	}

	entry := struct {
		Secret  string `json:"secret"`
		Payload string `json:"payload"`
	}{Secret: code.Secret, Payload: string(blob)}
	entryBlob, err := json.Marshal(entry)
	if err != nil {
		return token.Code{}, fmt.Errorf("encoding authorization code entry: %w", err)
	}

	if err := p.kv.SetRaw(ctx, p.codePrefix+code.Key, entryBlob, codeTTL); err != nil {
		return token.Code{}, fmt.Errorf("storing authorization code: %w", err)
	}
	return code, nil
}

// RedeemCode looks up and deletes a code in one step, so a second
// redemption attempt always fails (spec.md P6: "redeeming a code twice
// ... the second call fails with invalid_grant"). It verifies the
// code's secret, client, and redirect URI before returning the bound
// session token key.
func (p *Provider) RedeemCode(ctx context.Context, code token.Code, clientID, redirectURI string) (string, error) {
	// GETDEL reads and deletes atomically: codes are one-shot regardless of
	// what the rest of this function finds wrong with the request.
	raw, err := p.kv.Client().GetDel(ctx, p.codePrefix+code.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", apierrors.NewInvalidGrantError("authorization code is unknown or expired", nil)
	}
	if err != nil {
		return "", fmt.Errorf("reading authorization code: %w", err)
	}

	var entry struct {
		Secret  string `json:"secret"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", fmt.Errorf("decoding authorization code entry: %w", err)
	}
	if !code.Matches(entry.Secret) {
		return "", apierrors.NewInvalidGrantError("authorization code secret does not match", nil)
	}

	var payload codePayload
	if err := json.Unmarshal([]byte(entry.Payload), &payload); err != nil {
		return "", fmt.Errorf("decoding authorization code payload: %w", err)
	}
	if payload.ClientID != clientID {
		return "", apierrors.NewInvalidGrantError("authorization code was issued to a different client", nil)
	}
	if payload.RedirectURI != redirectURI {
		return "", apierrors.NewInvalidGrantError("redirect_uri does not match the authorization request", nil)
	}
	return payload.SessionTokenKey, nil
}

// IDTokenClaims holds the claims described in spec.md §4.6's /token
// success response.
type IDTokenClaims struct {
	Issuer            string `json:"iss"`
	Audience          string `json:"aud"`
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	Scope             string `json:"scope"`
	UIDNumber         int64  `json:"uid_number"`
	ExpiresAt         int64  `json:"exp"`
	IssuedAt          int64  `json:"iat"`
	JTI               string `json:"jti"`
}

// IssueIDToken signs an ID token for the given session data.
func (p *Provider) IssueIDToken(clientID string, data token.Data) (string, time.Duration, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: p.algorithm, Key: p.signingKey}, nil)
	if err != nil {
		return "", 0, fmt.Errorf("creating jwt signer: %w", err)
	}

	now := p.now()
	jti, err := token.NewCode() // reuse the same random-id primitive for a jti
	if err != nil {
		return "", 0, fmt.Errorf("generating jti: %w", err)
	}

	claims := IDTokenClaims{
		Issuer:            p.issuer,
		Audience:          clientID,
		Subject:           data.Username,
		PreferredUsername: data.Username,
		Name:              data.User.Name,
		Email:             data.User.Email,
		Scope:             "openid",
		UIDNumber:         data.User.UID,
		ExpiresAt:         now.Add(p.idTokenTTL).Unix(),
		IssuedAt:          now.Unix(),
		JTI:               jti.Key,
	}

	signed, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", 0, fmt.Errorf("signing id token: %w", err)
	}
	return signed, p.idTokenTTL, nil
}

// VerifyToken checks a bearer JWT's signature against the provider's own
// key and returns its claims as a raw map, for /userinfo's "return
// token.claims verbatim" behavior.
func (p *Provider) VerifyToken(raw string) (map[string]any, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{p.algorithm})
	if err != nil {
		return nil, fmt.Errorf("parsing jwt: %w", err)
	}
	var claims map[string]any
	if err := parsed.Claims(&p.signingKey.PublicKey, &claims); err != nil {
		return nil, fmt.Errorf("verifying jwt signature: %w", err)
	}
	return claims, nil
}

// JWKS returns the provider's public key set in RFC 7517 form.
func (p *Provider) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       &p.signingKey.PublicKey,
				KeyID:     "gafaelfawr",
				Algorithm: string(p.algorithm),
				Use:       "sig",
			},
		},
	}
}

// DiscoveryDocument is the /.well-known/openid-configuration payload.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
}

// Discovery builds the discovery document rooted at baseURL.
func (p *Provider) Discovery(baseURL string) DiscoveryDocument {
	return DiscoveryDocument{
		Issuer:                            p.issuer,
		AuthorizationEndpoint:             baseURL + "/auth/openid/login",
		TokenEndpoint:                     baseURL + "/auth/openid/token",
		UserinfoEndpoint:                  baseURL + "/auth/openid/userinfo",
		JWKSURI:                           baseURL + "/.well-known/jwks.json",
		ScopesSupported:                   []string{"openid"},
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		IDTokenSigningAlgValuesSupported:  []string{string(p.algorithm)},
	}
}
