// Package tokenservice implements the token subsystem's policy layer
// (spec.md §4.1): the only component permitted to mutate the KV store,
// the relational store, and the change-history log together, and the
// place every authorization rule for token lifecycle operations lives.
package tokenservice

import (
	"time"

	"github.com/gafaelfawr/gafaelfawr/pkg/cache"
	"github.com/gafaelfawr/gafaelfawr/pkg/gfconfig"
	"github.com/gafaelfawr/gafaelfawr/pkg/history"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/db"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/kv"
)

// AdminScope and UserScope are the two scopes the authorization helper
// reasons about. Every other scope is domain-specific and opaque to the
// token service itself.
const (
	AdminScope = "admin:token"
	UserScope  = "user:token"
)

// AuthInfo is the subset of the authenticating token's data the service
// needs to make authorization decisions: who it belongs to and what it
// can do.
type AuthInfo struct {
	Username string
	Scopes   []string
}

// IsAdmin reports whether the authenticating token carries admin:token.
func (a AuthInfo) IsAdmin() bool {
	return hasScope(a.Scopes, AdminScope)
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// Clock returns the current time; overridden in tests for deterministic
// expiry arithmetic.
type Clock func() time.Time

// Service is the token subsystem's policy layer, composing the KV store,
// the relational store, the change-history log, and the derived-token
// cache into the operations spec.md §4.1 names.
type Service struct {
	kv      *kv.Store
	db      db.RelationalStore
	history history.Log
	cache   *cache.Cache
	cfg     *gfconfig.Config
	now     Clock
}

// New builds a Service from its collaborators.
func New(kvStore *kv.Store, relStore db.RelationalStore, historyLog history.Log, tokenCache *cache.Cache, cfg *gfconfig.Config) *Service {
	return &Service{
		kv:      kvStore,
		db:      relStore,
		history: historyLog,
		cache:   tokenCache,
		cfg:     cfg,
		now:     time.Now,
	}
}
