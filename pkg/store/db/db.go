// Package db implements the relational token store (spec.md §4.3) on top
// of PostgreSQL via pgxpool, in the repository style of
// rocketship-ai-rocketship's internal/rbac/repository.go: a pool held on a
// struct, $N-parameterized SQL, pgx.ErrNoRows mapped to a nil/not-found
// return rather than propagated as a raw driver error.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// Store is the PostgreSQL-backed relational token store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pgxpool.Pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against dsn. Callers should call Migrate(dsn) once
// before Connect in a fresh environment.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

const infoColumns = `token, username, token_type, scopes, created, expires,
	token_name, parent, service, user_name, user_email, user_uid, user_gid, user_groups`

func scanInfo(row pgx.Row) (*token.Info, error) {
	var info token.Info
	var t token.Type
	if err := row.Scan(
		&info.Token, &info.Username, &t, &info.Scopes, &info.Created, &info.Expires,
		&info.Name, &info.Parent, &info.Service,
		&info.User.Name, &info.User.Email, &info.User.UID, &info.User.GID, &info.User.Groups,
	); err != nil {
		return nil, err
	}
	info.Type = t
	return &info, nil
}

// Add inserts a new relational row for info. The token key must not
// already exist.
func (s *Store) Add(ctx context.Context, info token.Info) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (`+infoColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		info.Token, info.Username, info.Type, token.SortScopes(append([]string(nil), info.Scopes...)),
		info.Created, info.Expires, info.Name, info.Parent, info.Service,
		info.User.Name, info.User.Email, info.User.UID, info.User.GID, info.User.Groups,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: token_name already in use for this owner", ErrDuplicateName)
		}
		return fmt.Errorf("inserting token row: %w", err)
	}
	return nil
}

// GetInfo retrieves a token's relational row, or nil if it does not exist.
func (s *Store) GetInfo(ctx context.Context, key string) (*token.Info, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+infoColumns+` FROM tokens WHERE token = $1`, key)
	info, err := scanInfo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying token row: %w", err)
	}
	return info, nil
}

// ModifyParams describes a partial update to a user token's relational
// row. Only fields with their Has* flag set are changed.
type ModifyParams struct {
	Name        *string
	HasName     bool
	Scopes      []string
	HasScopes   bool
	Expires     *time.Time
	HasExpires  bool // covers both a new expires value and NoExpire (Expires == nil)
}

// Modify updates the mutable fields of a user token's relational row and
// returns the updated Info, or nil if the token does not exist.
func (s *Store) Modify(ctx context.Context, key string, params ModifyParams) (*token.Info, error) {
	existing, err := s.GetInfo(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	name := existing.Name
	if params.HasName {
		name = params.Name
	}
	scopes := existing.Scopes
	if params.HasScopes {
		scopes = token.SortScopes(append([]string(nil), params.Scopes...))
	}
	expires := existing.Expires
	if params.HasExpires {
		expires = params.Expires
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE tokens SET token_name = $2, scopes = $3, expires = $4
		WHERE token = $1
	`, key, name, scopes, expires)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: token_name already in use for this owner", ErrDuplicateName)
		}
		return nil, fmt.Errorf("updating token row: %w", err)
	}

	return s.GetInfo(ctx, key)
}

// Delete removes a token's relational row. Returns false if it did not
// exist.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tokens WHERE token = $1`, key)
	if err != nil {
		return false, fmt.Errorf("deleting token row: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetChildren returns every descendant of key, breadth-first over the
// parent edge (direct children first, then grandchildren, and so on),
// matching spec.md §4.3's requirement that cascading revoke can reverse
// this list to delete leaves first.
func (s *Store) GetChildren(ctx context.Context, key string) ([]token.Info, error) {
	var all []token.Info
	frontier := []string{key}
	for len(frontier) > 0 {
		rows, err := s.pool.Query(ctx, `SELECT `+infoColumns+` FROM tokens WHERE parent = ANY($1)`, frontier)
		if err != nil {
			return nil, fmt.Errorf("querying children: %w", err)
		}
		var next []string
		for rows.Next() {
			info, err := scanInfo(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning child row: %w", err)
			}
			all = append(all, *info)
			next = append(next, info.Token)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterating children: %w", err)
		}
		frontier = next
	}
	return all, nil
}

// ListTokens lists tokens, optionally restricted to one owner.
func (s *Store) ListTokens(ctx context.Context, username *string) ([]token.Info, error) {
	var rows pgx.Rows
	var err error
	if username != nil {
		rows, err = s.pool.Query(ctx, `SELECT `+infoColumns+` FROM tokens WHERE username = $1 ORDER BY created DESC`, *username)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+infoColumns+` FROM tokens ORDER BY created DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	var out []token.Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning token row: %w", err)
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

// ListWithParents returns every token whose parent is non-null, for use by
// the audit pass's I4 (expiration monotonicity) and orphan checks.
func (s *Store) ListWithParents(ctx context.Context) ([]token.Info, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+infoColumns+` FROM tokens WHERE parent IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("listing derived tokens: %w", err)
	}
	defer rows.Close()

	var out []token.Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning derived token row: %w", err)
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

// ListOrphaned returns every token whose parent column references a row
// that no longer exists.
func (s *Store) ListOrphaned(ctx context.Context) ([]token.Info, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+columnsWithAlias("t")+` FROM tokens t
		WHERE t.parent IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM tokens p WHERE p.token = t.parent)
	`)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned tokens: %w", err)
	}
	defer rows.Close()

	var out []token.Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning orphaned token row: %w", err)
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

func columnsWithAlias(alias string) string {
	cols := []string{"token", "username", "token_type", "scopes", "created", "expires",
		"token_name", "parent", "service", "user_name", "user_email", "user_uid", "user_gid", "user_groups"}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}

// DeleteExpired atomically pops every row with expires <= now using
// SELECT ... FOR UPDATE followed by a delete in the same transaction, and
// returns the deleted rows so the caller can emit one history entry per
// row.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) ([]token.Info, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning sweep transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op if committed

	rows, err := tx.Query(ctx, `SELECT `+infoColumns+` FROM tokens WHERE expires <= $1 FOR UPDATE`, now)
	if err != nil {
		return nil, fmt.Errorf("selecting expired tokens: %w", err)
	}
	var expired []token.Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning expired token row: %w", err)
		}
		expired = append(expired, *info)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired tokens: %w", err)
	}

	if len(expired) > 0 {
		keys := make([]string, len(expired))
		for i, info := range expired {
			keys[i] = info.Token
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tokens WHERE token = ANY($1)`, keys); err != nil {
			return nil, fmt.Errorf("deleting expired tokens: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing sweep transaction: %w", err)
	}
	return expired, nil
}

// AddAdmin grants admin status to username. Idempotent.
func (s *Store) AddAdmin(ctx context.Context, username string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO admins (username) VALUES ($1) ON CONFLICT DO NOTHING`, username)
	if err != nil {
		return fmt.Errorf("adding admin: %w", err)
	}
	return nil
}

// RemoveAdmin revokes admin status from username.
func (s *Store) RemoveAdmin(ctx context.Context, username string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM admins WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("removing admin: %w", err)
	}
	return nil
}

// IsAdmin reports whether username currently has admin status.
func (s *Store) IsAdmin(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM admins WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking admin status: %w", err)
	}
	return exists, nil
}

// ListAdmins returns every admin username.
func (s *Store) ListAdmins(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT username FROM admins ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning admin row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ErrDuplicateName is wrapped and returned by Add/Modify when the
// (username, token_name) unique index is violated.
var ErrDuplicateName = errors.New("db: token_name already in use")

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
