package tokenservice

import (
	"context"
	"errors"
	"fmt"

	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/kv"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// SessionData returns the raw KV token data behind key, bypassing the
// relational/ownership checks the rest of the service applies. It exists
// for the OIDC provider's authorization-code flow, which binds a code to a
// session token key and needs the underlying username and user metadata to
// mint an ID token, not a caller-facing projection.
func (s *Service) SessionData(ctx context.Context, key string) (*token.Data, error) {
	data, err := s.kv.GetDataByKey(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, apierrors.NewNotFoundError("session token not found", nil)
		}
		return nil, fmt.Errorf("looking up session token: %w", err)
	}
	return data, nil
}
