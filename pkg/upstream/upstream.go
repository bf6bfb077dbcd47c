// Package upstream defines the Authenticator contract the token service's
// createSessionToken path needs from an upstream identity provider, and two
// real implementations: GitHub OAuth2 and generic OIDC. Per spec.md §1,
// "upstream identity-provider flows (OIDC redirect dance, GitHub OAuth)"
// are explicitly out of scope for the token subsystem itself — these are
// thin peers the HTTP layer calls before it ever reaches createSessionToken,
// not reimplementations of the provider's own security logic.
package upstream

import (
	"context"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// UserInfo is the subset of upstream-provider identity this module needs to
// mint a session token, matching token.UserMetadata's shape plus the
// username the session will be created for.
type UserInfo struct {
	Username string
	token.UserMetadata
}

// Authenticator starts and completes an upstream login redirect dance.
// StartLogin returns the URL to redirect the browser to; HandleCallback
// exchanges the authorization response for verified UserInfo.
type Authenticator interface {
	// StartLogin returns the upstream authorization URL for state. It
	// returns no other value; persisting state (e.g. in a short-lived
	// cookie) to prevent CSRF on the return leg is left to the caller.
	StartLogin(ctx context.Context, state string) (redirectURL string, err error)

	// HandleCallback completes the flow given the query parameters the
	// provider redirected back with (code, state, etc.) and returns the
	// authenticated user's identity.
	HandleCallback(ctx context.Context, query map[string]string) (UserInfo, error)
}
