package history

import (
	"context"
	"time"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// Log is the set of operations tokenservice needs from the change-history
// store. Both *Store (PostgreSQL) and *MemLog (in-process) implement it.
type Log interface {
	Add(ctx context.Context, entry token.ChangeHistoryEntry) error
	List(ctx context.Context, filter Filter, after *Cursor, limit int) (*Page, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ Log = (*Store)(nil)
	_ Log = (*MemLog)(nil)
)
