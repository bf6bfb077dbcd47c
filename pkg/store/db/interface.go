package db

import (
	"context"
	"time"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// RelationalStore is the set of operations tokenservice needs from the
// relational token store. Both *Store (PostgreSQL) and *MemStore
// (in-process) implement it.
type RelationalStore interface {
	Add(ctx context.Context, info token.Info) error
	GetInfo(ctx context.Context, key string) (*token.Info, error)
	Modify(ctx context.Context, key string, params ModifyParams) (*token.Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	GetChildren(ctx context.Context, key string) ([]token.Info, error)
	ListTokens(ctx context.Context, username *string) ([]token.Info, error)
	ListWithParents(ctx context.Context) ([]token.Info, error)
	ListOrphaned(ctx context.Context) ([]token.Info, error)
	DeleteExpired(ctx context.Context, now time.Time) ([]token.Info, error)
	AddAdmin(ctx context.Context, username string) error
	RemoveAdmin(ctx context.Context, username string) error
	IsAdmin(ctx context.Context, username string) (bool, error)
	ListAdmins(ctx context.Context) ([]string, error)
}

var (
	_ RelationalStore = (*Store)(nil)
	_ RelationalStore = (*MemStore)(nil)
)
