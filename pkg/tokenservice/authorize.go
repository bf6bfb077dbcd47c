package tokenservice

import (
	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
)

// checkAuthorization implements spec.md §4.1's _checkAuthorization helper:
//
//   - if subject is nil or requireAdmin is set, auth must be an admin;
//   - if subject differs from auth.Username, auth must be an admin and
//     requireSameUser must be false;
//   - otherwise auth must carry user:token (admins are exempt from that
//     requirement: admin:token is treated as satisfying user:token
//     implicitly).
func (s *Service) checkAuthorization(subject *string, auth AuthInfo, requireAdmin, requireSameUser bool) error {
	isAdmin := auth.IsAdmin()

	if subject == nil || requireAdmin {
		if !isAdmin {
			return apierrors.NewPermissionDeniedError("admin:token is required", nil)
		}
		return nil
	}

	if *subject != auth.Username {
		if !isAdmin || requireSameUser {
			return apierrors.NewPermissionDeniedError("caller may not act on another user's tokens", nil)
		}
		return nil
	}

	if !isAdmin && !hasScope(auth.Scopes, UserScope) {
		return apierrors.NewPermissionDeniedError("user:token is required", nil)
	}
	return nil
}
