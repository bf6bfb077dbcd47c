package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// MemStore is an in-process implementation of the same operations as
// Store, backed by a map instead of PostgreSQL. The retrieved example
// pack carries no pgx test double (no pgxmock, no testcontainers usage
// anywhere in it), so MemStore is what tokenservice's tests and any
// other caller that needs a relational store without a live database
// actually exercise; Store itself is grounded on
// rocketship-ai-rocketship/internal/rbac/repository.go and has no tests
// of its own; MemStore implements the same RelationalStore interface.
type MemStore struct {
	mu     sync.Mutex
	rows   map[string]token.Info
	admins map[string]struct{}
}

// NewMemory returns an empty MemStore.
func NewMemory() *MemStore {
	return &MemStore{
		rows:   make(map[string]token.Info),
		admins: make(map[string]struct{}),
	}
}

func cloneInfo(info token.Info) token.Info {
	out := info
	out.Scopes = append([]string(nil), info.Scopes...)
	out.User.Groups = append([]string(nil), info.User.Groups...)
	return out
}

func (m *MemStore) Add(_ context.Context, info token.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info.Type == token.TypeUser && info.Name != nil {
		for _, row := range m.rows {
			if row.Username == info.Username && row.Type == token.TypeUser &&
				row.Name != nil && *row.Name == *info.Name {
				return fmt.Errorf("%w: token_name already in use for this owner", ErrDuplicateName)
			}
		}
	}
	m.rows[info.Token] = cloneInfo(info)
	return nil
}

func (m *MemStore) GetInfo(_ context.Context, key string) (*token.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return nil, nil
	}
	out := cloneInfo(row)
	return &out, nil
}

func (m *MemStore) Modify(_ context.Context, key string, params ModifyParams) (*token.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return nil, nil
	}
	if params.HasName {
		if params.Name != nil {
			for k, other := range m.rows {
				if k != key && other.Username == row.Username && other.Type == token.TypeUser &&
					other.Name != nil && *other.Name == *params.Name {
					return nil, fmt.Errorf("%w: token_name already in use for this owner", ErrDuplicateName)
				}
			}
		}
		row.Name = params.Name
	}
	if params.HasScopes {
		row.Scopes = token.SortScopes(append([]string(nil), params.Scopes...))
	}
	if params.HasExpires {
		row.Expires = params.Expires
	}
	m.rows[key] = row
	out := cloneInfo(row)
	return &out, nil
}

func (m *MemStore) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[key]; !ok {
		return false, nil
	}
	delete(m.rows, key)
	return true, nil
}

func (m *MemStore) GetChildren(_ context.Context, key string) ([]token.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []token.Info
	frontier := []string{key}
	for len(frontier) > 0 {
		var next []string
		for _, parent := range frontier {
			for _, row := range m.rows {
				if row.Parent != nil && *row.Parent == parent {
					all = append(all, cloneInfo(row))
					next = append(next, row.Token)
				}
			}
		}
		frontier = next
	}
	return all, nil
}

func (m *MemStore) ListTokens(_ context.Context, username *string) ([]token.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []token.Info
	for _, row := range m.rows {
		if username != nil && row.Username != *username {
			continue
		}
		out = append(out, cloneInfo(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

func (m *MemStore) ListWithParents(_ context.Context) ([]token.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []token.Info
	for _, row := range m.rows {
		if row.Parent != nil {
			out = append(out, cloneInfo(row))
		}
	}
	return out, nil
}

func (m *MemStore) ListOrphaned(_ context.Context) ([]token.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []token.Info
	for _, row := range m.rows {
		if row.Parent == nil {
			continue
		}
		if _, ok := m.rows[*row.Parent]; !ok {
			out = append(out, cloneInfo(row))
		}
	}
	return out, nil
}

func (m *MemStore) DeleteExpired(_ context.Context, now time.Time) ([]token.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []token.Info
	for key, row := range m.rows {
		if row.Expires != nil && !row.Expires.After(now) {
			expired = append(expired, cloneInfo(row))
			delete(m.rows, key)
		}
	}
	return expired, nil
}

func (m *MemStore) AddAdmin(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[username] = struct{}{}
	return nil
}

func (m *MemStore) RemoveAdmin(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.admins, username)
	return nil
}

func (m *MemStore) IsAdmin(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.admins[username]
	return ok, nil
}

func (m *MemStore) ListAdmins(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.admins))
	for u := range m.admins {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}
