package tokenservice

import (
	"context"
	"fmt"
	"time"

	"github.com/gafaelfawr/gafaelfawr/pkg/cache"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// minCacheLifetime is the default minimum remaining lifetime a cached
// derived token must carry to be reused, per spec.md §4.5.
const minCacheLifetime = 1 * time.Minute

// GetNotebookToken returns a notebook token derived from parent,
// memoized by (parent.key, scopes) so repeated calls from the same
// notebook spawner reuse one token (spec.md §4.5 getNotebookToken).
func (s *Service) GetNotebookToken(ctx context.Context, parent token.Data, ip string) (token.Token, error) {
	return s.getDerivedToken(ctx, parent, token.TypeNotebook, nil, parent.Scopes, ip, minCacheLifetime)
}

// GetInternalToken returns an internal token derived from parent, scoped
// to service and the intersection of requested scopes with the parent's
// own scopes (spec.md §4.5 getInternalToken).
func (s *Service) GetInternalToken(ctx context.Context, parent token.Data, service string, scopes []string, ip string) (token.Token, error) {
	return s.getDerivedToken(ctx, parent, token.TypeInternal, &service, scopes, ip, minCacheLifetime)
}

func (s *Service) getDerivedToken(
	ctx context.Context,
	parent token.Data,
	kind token.Type,
	service *string,
	requestedScopes []string,
	ip string,
	minLifetime time.Duration,
) (token.Token, error) {
	if err := s.validateKnownScopes(requestedScopes); err != nil {
		return token.Token{}, err
	}

	key := cache.BuildKey(parent.Token.Key, kind, service, requestedScopes)

	isLive := func(tok token.Token) bool {
		data, err := s.kv.GetDataByKey(ctx, tok.Key)
		if err != nil {
			return false
		}
		remaining, hasTTL := token.TTL(data.Expires, s.now())
		return !hasTTL || remaining >= minLifetime
	}

	create := func(ctx context.Context) (token.Token, error) {
		return s.mintDerivedToken(ctx, parent, kind, service, requestedScopes, ip)
	}

	return s.cache.GetOrCreate(ctx, key, isLive, create)
}

func (s *Service) mintDerivedToken(ctx context.Context, parent token.Data, kind token.Type, service *string, requestedScopes []string, ip string) (token.Token, error) {
	tok, err := token.NewToken()
	if err != nil {
		return token.Token{}, fmt.Errorf("minting derived token: %w", err)
	}

	now := s.now()
	scopes := token.ScopeIntersection(requestedScopes, parent.Scopes)
	expires := now.Add(s.cfg.DerivedLifetime)
	if parent.Expires != nil && parent.Expires.Before(expires) {
		expires = *parent.Expires
	}

	data := token.Data{
		Token:    tok,
		Username: parent.Username,
		Type:     kind,
		Scopes:   scopes,
		Created:  now,
		Expires:  &expires,
		User:     parent.User,
	}

	parentKey := parent.Token.Key
	if err := s.writeNewToken(ctx, data, nil, &parentKey, service, parent.Username, ip); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}
