package tokenservice

import (
	"context"
	"fmt"
	"time"

	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/db"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// ModifyRequest is the set of optional edits Modify can apply. Only
// fields with their Has* flag set are changed; NoExpire clears an
// expires value regardless of what Expires holds.
type ModifyRequest struct {
	Name       *string
	HasName    bool
	Scopes     []string
	HasScopes  bool
	Expires    *time.Time
	HasExpires bool
	NoExpire   bool
}

// Modify edits a user token's mutable fields (spec.md §4.1 modify). Only
// type=user tokens may be modified; other types are immutable by design
// and must be re-created instead (see DESIGN.md's Open Question
// resolution on this point). If the new expires narrows relative to the
// old one, every descendant whose own expires would now exceed the new
// bound has its expires tightened to match, recursively.
func (s *Service) Modify(ctx context.Context, key string, auth AuthInfo, owner *string, ip string, req ModifyRequest) (*token.Info, error) {
	if !auth.IsAdmin() {
		return nil, apierrors.NewPermissionDeniedError("admin:token is required", nil)
	}

	info, err := s.db.GetInfo(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("looking up token to modify: %w", err)
	}
	if info == nil {
		return nil, apierrors.NewNotFoundError("token not found", nil)
	}
	if owner != nil && info.Username != *owner {
		return nil, apierrors.NewNotFoundError("token not found", nil)
	}
	if info.Type != token.TypeUser {
		return nil, apierrors.NewInvalidRequestError("only user tokens may be modified", nil)
	}

	newExpires := info.Expires
	if req.NoExpire {
		newExpires = nil
	} else if req.HasExpires {
		if req.Expires != nil {
			now := s.now()
			if req.Expires.Before(now.Add(s.cfg.MinimumLifetime)) {
				return nil, apierrors.NewInvalidExpiresError("expires must be at least the minimum lifetime in the future", nil)
			}
			truncated := req.Expires.Truncate(time.Second)
			newExpires = &truncated
		} else {
			newExpires = nil
		}
	}

	newScopes := info.Scopes
	if req.HasScopes {
		if err := s.validateKnownScopes(req.Scopes); err != nil {
			return nil, err
		}
		if !auth.IsAdmin() && !token.ScopeSubset(req.Scopes, auth.Scopes) {
			return nil, apierrors.NewInvalidScopesError("requested scopes exceed the authenticating token's scopes", nil)
		}
		newScopes = token.SortScopes(append([]string(nil), req.Scopes...))
	}

	params := db.ModifyParams{}
	oldName := info.Name
	if req.HasName {
		params.Name, params.HasName = req.Name, true
	}
	if req.HasScopes {
		params.Scopes, params.HasScopes = newScopes, true
	}
	if req.NoExpire || req.HasExpires {
		params.Expires, params.HasExpires = newExpires, true
	}

	updated, err := s.db.Modify(ctx, key, params)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apierrors.NewNotFoundError("token not found", nil)
	}

	scopesChanged := req.HasScopes && !token.ScopesEqual(info.Scopes, newScopes)
	expiresChanged := (req.NoExpire || req.HasExpires) && !expiresEqual(info.Expires, newExpires)
	nameChanged := req.HasName && !namesEqual(oldName, req.Name)

	if scopesChanged || expiresChanged {
		data, err := s.kv.GetDataByKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading kv entry to rewrite: %w", err)
		}
		data.Scopes = newScopes
		data.Expires = newExpires
		if err := s.kv.StoreData(ctx, *data); err != nil {
			return nil, fmt.Errorf("rewriting kv entry: %w", err)
		}
	}

	if nameChanged || scopesChanged || expiresChanged {
		entry := token.ChangeHistoryEntry{
			Token:     key,
			Username:  updated.Username,
			Type:      updated.Type,
			Name:      updated.Name,
			Parent:    updated.Parent,
			Scopes:    updated.Scopes,
			Service:   updated.Service,
			Expires:   updated.Expires,
			Actor:     auth.Username,
			Action:    token.ActionEdit,
			IPAddress: ip,
			EventTime: s.now(),
		}
		if nameChanged {
			entry.OldName = oldName
		}
		if scopesChanged {
			entry.OldScopes = info.Scopes
		}
		if expiresChanged {
			entry.OldExpires = info.Expires
		}
		if err := s.history.Add(ctx, entry); err != nil {
			return nil, fmt.Errorf("appending edit history entry: %w", err)
		}
	}

	if expiresChanged && expiresNarrowed(info.Expires, newExpires) {
		if err := s.narrowChildren(ctx, key, newExpires, auth.Username, ip); err != nil {
			return nil, fmt.Errorf("cascading expiration narrowing: %w", err)
		}
	}

	return updated, nil
}

// narrowChildren recurses into key's descendants, tightening any whose
// expires exceeds bound (or who have no expires at all) down to bound,
// per spec.md's P3 testable property.
func (s *Service) narrowChildren(ctx context.Context, key string, bound *time.Time, actor, ip string) error {
	children, err := s.db.GetChildren(ctx, key)
	if err != nil {
		return err
	}
	for _, child := range children {
		if !expiresExceeds(child.Expires, bound) {
			continue
		}
		oldExpires := child.Expires
		updated, err := s.db.Modify(ctx, child.Token, db.ModifyParams{Expires: bound, HasExpires: true})
		if err != nil {
			return err
		}
		if updated == nil {
			continue
		}

		data, err := s.kv.GetDataByKey(ctx, child.Token)
		if err != nil {
			return fmt.Errorf("reading kv entry for child %s to narrow: %w", child.Token, err)
		}
		data.Expires = bound
		if err := s.kv.StoreData(ctx, *data); err != nil {
			return fmt.Errorf("rewriting kv entry for child %s: %w", child.Token, err)
		}

		entry := token.ChangeHistoryEntry{
			Token:      child.Token,
			Username:   updated.Username,
			Type:       updated.Type,
			Name:       updated.Name,
			Parent:     updated.Parent,
			Scopes:     updated.Scopes,
			Service:    updated.Service,
			Expires:    updated.Expires,
			OldExpires: oldExpires,
			Actor:      actor,
			Action:     token.ActionEdit,
			IPAddress:  ip,
			EventTime:  s.now(),
		}
		if err := s.history.Add(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func expiresEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func namesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// expiresNarrowed reports whether newExpires is a tighter bound than
// oldExpires, treating nil as +infinity.
func expiresNarrowed(oldExpires, newExpires *time.Time) bool {
	if newExpires == nil {
		return false
	}
	if oldExpires == nil {
		return true
	}
	return !newExpires.After(*oldExpires)
}

// expiresExceeds reports whether expires (nil meaning +infinity) is
// later than bound.
func expiresExceeds(expires, bound *time.Time) bool {
	if bound == nil {
		return false
	}
	if expires == nil {
		return true
	}
	return expires.After(*bound)
}
