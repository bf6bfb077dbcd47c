// Package userinfo defines the Enricher contract for attaching
// name/email/group metadata to an authenticated username before a session
// token is minted. Per spec.md §1, "LDAP/Firestore user-info enrichment" is
// explicitly out of scope for the token subsystem: Enricher exists so
// createSessionToken can depend on an interface instead of a concrete
// directory client, with NoopEnricher as the default that passes identity
// fields through unchanged.
package userinfo

import (
	"context"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// Enricher fills in the UserMetadata fields a session token embeds, given
// only the username the upstream provider authenticated.
type Enricher interface {
	Enrich(ctx context.Context, username string, seed token.UserMetadata) (token.UserMetadata, error)
}

// NoopEnricher returns seed unchanged. Used when no directory service is
// configured.
type NoopEnricher struct{}

// Enrich implements Enricher by returning seed as-is.
func (NoopEnricher) Enrich(_ context.Context, _ string, seed token.UserMetadata) (token.UserMetadata, error) {
	return seed, nil
}
