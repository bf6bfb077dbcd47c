// Package cache memoizes derived-token creation (spec.md §4.5): notebook
// and internal tokens are deterministic functions of their parent token,
// requested scopes, and (for internal tokens) a service name, so repeated
// requests for the same derivation should reuse one token rather than
// minting a fresh child on every call. It is built on
// hashicorp/golang-lru/v2 for bounded memoization and
// golang.org/x/sync/singleflight to collapse concurrent duplicate
// derivations into a single in-flight creation.
package cache

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// DefaultSize bounds the number of memoized derivations kept in memory.
const DefaultSize = 10_000

// Cache memoizes token.Token values for derivation keys built by BuildKey.
type Cache struct {
	entries *lru.Cache[string, token.Token]
	group   singleflight.Group
}

// New creates a Cache holding up to size entries.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, token.Token](size)
	if err != nil {
		return nil, fmt.Errorf("creating token cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// BuildKey derives the cache key for a notebook or internal token: the
// parent's key, the derived kind, an optional service name, and the
// requested scopes sorted for stability (spec.md's token cache key must
// not depend on the caller's scope ordering).
func BuildKey(parentKey string, kind token.Type, service *string, scopes []string) string {
	svc := ""
	if service != nil {
		svc = *service
	}
	sorted := token.SortScopes(append([]string(nil), scopes...))
	return strings.Join([]string{parentKey, string(kind), svc, strings.Join(sorted, ",")}, "|")
}

// GetOrCreate returns the memoized token for key if present and still
// considered live by isLive, otherwise calls create exactly once across
// any number of concurrent callers sharing the same key and memoizes the
// result.
func (c *Cache) GetOrCreate(
	ctx context.Context,
	key string,
	isLive func(token.Token) bool,
	create func(ctx context.Context) (token.Token, error),
) (token.Token, error) {
	if cached, ok := c.entries.Get(key); ok && isLive(cached) {
		return cached, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok := c.entries.Get(key); ok && isLive(cached) {
			return cached, nil
		}
		created, err := create(ctx)
		if err != nil {
			return token.Token{}, err
		}
		c.entries.Add(key, created)
		return created, nil
	})
	if err != nil {
		return token.Token{}, err
	}
	return result.(token.Token), nil
}

// Invalidate drops a memoized derivation, used when its underlying parent
// or child token is revoked or modified out from under the cache.
func (c *Cache) Invalidate(key string) {
	c.entries.Remove(key)
}

// Purge drops every memoized derivation.
func (c *Cache) Purge() {
	c.entries.Purge()
}
