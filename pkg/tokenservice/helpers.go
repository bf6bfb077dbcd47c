package tokenservice

import (
	"fmt"
	"time"

	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/db"
)

func modifyExpiresNow(now time.Time) db.ModifyParams {
	return db.ModifyParams{Expires: &now, HasExpires: true}
}

func dbModifyScopes(scopes []string) db.ModifyParams {
	return db.ModifyParams{Scopes: scopes, HasScopes: true}
}

// validateKnownScopes rejects any scope outside the configured known-scope
// set, per the Python ground truth's unconditional _validate_scopes check:
// this runs on every create/modify/derive path regardless of caller, ahead
// of and distinct from the subset check against the authenticating token's
// own scopes. CreateSessionToken is the exception: it does not call this,
// and stores the scopes it is given without checking them.
func (s *Service) validateKnownScopes(scopes []string) error {
	for _, scope := range scopes {
		if !s.cfg.KnownScope(scope) {
			return apierrors.NewInvalidScopesError(fmt.Sprintf("unknown scope %q", scope), nil)
		}
	}
	return nil
}
