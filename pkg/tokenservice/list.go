package tokenservice

import (
	"context"
	"fmt"

	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/history"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// ListTokens lists tokens, either every owner's (admin only) or one
// owner's, per spec.md §4.1 listTokens.
func (s *Service) ListTokens(ctx context.Context, auth AuthInfo, owner *string) ([]token.Info, error) {
	if owner == nil {
		if !auth.IsAdmin() {
			return nil, apierrors.NewPermissionDeniedError("admin:token is required to list all tokens", nil)
		}
	} else if *owner != auth.Username && !auth.IsAdmin() {
		return nil, apierrors.NewPermissionDeniedError("caller may not list another user's tokens", nil)
	}

	tokens, err := s.db.ListTokens(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	return tokens, nil
}

// GetTokenInfo returns a single token's relational projection, enforcing
// the same authorization rule as ListTokens against its actual owner.
func (s *Service) GetTokenInfo(ctx context.Context, auth AuthInfo, key string) (*token.Info, error) {
	info, err := s.db.GetInfo(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}
	if info == nil {
		return nil, apierrors.NewNotFoundError("token not found", nil)
	}
	if info.Username != auth.Username && !auth.IsAdmin() {
		return nil, apierrors.NewPermissionDeniedError("caller may not view another user's token", nil)
	}
	return info, nil
}

// GetChangeHistory returns one page of change-history entries matching
// filter (spec.md §4.1 getChangeHistory). A non-admin caller may only
// request history scoped to their own username.
func (s *Service) GetChangeHistory(ctx context.Context, auth AuthInfo, filter history.Filter, after *history.Cursor, limit int) (*history.Page, error) {
	if !auth.IsAdmin() {
		if filter.Username == nil || *filter.Username != auth.Username {
			return nil, apierrors.NewPermissionDeniedError("caller may only view their own change history", nil)
		}
	}
	page, err := s.history.List(ctx, filter, after, limit)
	if err != nil {
		return nil, fmt.Errorf("listing change history: %w", err)
	}
	return page, nil
}
