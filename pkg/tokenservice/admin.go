package tokenservice

import "context"

// ListAdmins returns every admin username. Requires admin:token.
func (s *Service) ListAdmins(ctx context.Context, auth AuthInfo) ([]string, error) {
	if err := s.checkAuthorization(nil, auth, true, false); err != nil {
		return nil, err
	}
	return s.db.ListAdmins(ctx)
}

// AddAdmin grants admin status to username. Requires admin:token.
func (s *Service) AddAdmin(ctx context.Context, auth AuthInfo, username string) error {
	if err := s.checkAuthorization(nil, auth, true, false); err != nil {
		return err
	}
	return s.db.AddAdmin(ctx, username)
}

// RemoveAdmin revokes admin status from username. Requires admin:token.
func (s *Service) RemoveAdmin(ctx context.Context, auth AuthInfo, username string) error {
	if err := s.checkAuthorization(nil, auth, true, false); err != nil {
		return err
	}
	return s.db.RemoveAdmin(ctx, username)
}
