package tokenservice

import (
	"context"
	"fmt"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// ExpireTokens atomically pops every relational row whose expires has
// passed and appends an expire history entry for each, actor
// "<internal>" (spec.md §4.1 expireTokens). KV rows for the same tokens
// are already gone by their own TTL; this only cleans the relational
// side and the history log.
func (s *Service) ExpireTokens(ctx context.Context) error {
	now := s.now()
	expired, err := s.db.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("sweeping expired tokens: %w", err)
	}

	for _, info := range expired {
		entry := token.ChangeHistoryEntry{
			Token:     info.Token,
			Username:  info.Username,
			Type:      info.Type,
			Name:      info.Name,
			Parent:    info.Parent,
			Scopes:    info.Scopes,
			Service:   info.Service,
			Expires:   info.Expires,
			Actor:     token.InternalActor,
			Action:    token.ActionExpire,
			IPAddress: "",
			EventTime: now,
		}
		if err := s.history.Add(ctx, entry); err != nil {
			return fmt.Errorf("appending expire history entry for %s: %w", info.Token, err)
		}
	}
	return nil
}

// TruncateHistory deletes change-history entries older than the
// configured retention window (spec.md §4.1 truncateHistory).
func (s *Service) TruncateHistory(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.HistoryRetention)
	if _, err := s.history.DeleteOlderThan(ctx, cutoff); err != nil {
		return fmt.Errorf("truncating change history: %w", err)
	}
	return nil
}
