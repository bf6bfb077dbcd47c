package tokenservice

import (
	"context"
	"fmt"

	"github.com/gafaelfawr/gafaelfawr/pkg/cache"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// Delete revokes a token and every descendant reachable through the
// parent edge (spec.md §4.1 delete). Children are fetched breadth-first
// and revoked in reverse order so leaves are deleted before their
// ancestors; the target itself is revoked last. Returns false (no error)
// if the token does not exist or owner does not match its actual owner,
// matching the spec's "not found is not an error" contract.
func (s *Service) Delete(ctx context.Context, key string, auth AuthInfo, owner *string, ip string) (bool, error) {
	info, err := s.db.GetInfo(ctx, key)
	if err != nil {
		return false, fmt.Errorf("looking up token to delete: %w", err)
	}
	if info == nil {
		return false, nil
	}
	if owner != nil && info.Username != *owner {
		return false, nil
	}

	subject := info.Username
	if err := s.checkAuthorization(&subject, auth, false, false); err != nil {
		return false, err
	}

	children, err := s.db.GetChildren(ctx, key)
	if err != nil {
		return false, fmt.Errorf("fetching descendants for cascading revoke: %w", err)
	}

	// Reverse breadth-first order: leaves (later entries) are revoked
	// before their ancestors.
	for i := len(children) - 1; i >= 0; i-- {
		if err := s.revokeOne(ctx, children[i], auth.Username, ip); err != nil {
			return false, fmt.Errorf("revoking descendant %s: %w", children[i].Token, err)
		}
	}

	if err := s.revokeOne(ctx, *info, auth.Username, ip); err != nil {
		return false, fmt.Errorf("revoking token: %w", err)
	}
	return true, nil
}

func (s *Service) revokeOne(ctx context.Context, info token.Info, actor, ip string) error {
	if err := s.kv.Delete(ctx, info.Token); err != nil {
		return fmt.Errorf("deleting from kv store: %w", err)
	}
	if _, err := s.db.Delete(ctx, info.Token); err != nil {
		return fmt.Errorf("deleting relational row: %w", err)
	}

	entry := token.ChangeHistoryEntry{
		Token:     info.Token,
		Username:  info.Username,
		Type:      info.Type,
		Name:      info.Name,
		Parent:    info.Parent,
		Scopes:    info.Scopes,
		Service:   info.Service,
		Expires:   info.Expires,
		Actor:     actor,
		Action:    token.ActionRevoke,
		IPAddress: ip,
		EventTime: s.now(),
	}
	if err := s.history.Add(ctx, entry); err != nil {
		return fmt.Errorf("appending revoke history entry: %w", err)
	}

	if info.Parent != nil && s.cache != nil {
		s.cache.Invalidate(cache.BuildKey(*info.Parent, info.Type, info.Service, info.Scopes))
	}
	return nil
}
