package userinfo

import (
	"context"
	"fmt"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// LDAPConfig names the directory search this enricher would perform. It is
// kept as a documented, unexercised stub: spec.md §1 puts LDAP/Firestore
// enrichment out of scope, and no LDAP server is available anywhere in this
// module's test environment to verify a real bind-and-search against. A
// full implementation would use github.com/go-ldap/ldap/v3 (carried by the
// dexidp-dex manifest in the retrieved pack, the closest analog to this
// enrichment role) to bind with BaseDN/BindDN/BindPassword and search
// UserSearchFilter for name/email/group attributes.
type LDAPConfig struct {
	BaseDN           string
	BindDN           string
	BindPassword     string
	UserSearchFilter string
	GroupSearchBase  string
}

// LDAPEnricher is an Enricher that would resolve a username against an LDAP
// directory. NewLDAPEnricher only validates configuration; Enrich always
// fails, since wiring a live directory connection is out of scope here.
type LDAPEnricher struct {
	cfg LDAPConfig
}

// NewLDAPEnricher validates cfg and returns an LDAPEnricher for it.
func NewLDAPEnricher(cfg LDAPConfig) (*LDAPEnricher, error) {
	if cfg.BaseDN == "" {
		return nil, fmt.Errorf("userinfo: LDAPConfig.BaseDN is required")
	}
	return &LDAPEnricher{cfg: cfg}, nil
}

// Enrich is unimplemented: see the LDAPEnricher doc comment.
func (e *LDAPEnricher) Enrich(context.Context, string, token.UserMetadata) (token.UserMetadata, error) {
	return token.UserMetadata{}, fmt.Errorf("userinfo: LDAP enrichment is not implemented in this deployment")
}
