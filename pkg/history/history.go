// Package history implements the append-only token change-history log
// (spec.md §4.4): one row per lifecycle event, cursor-paginated in
// reverse-chronological order. It is built on the same pgxpool.Pool as
// pkg/store/db, grounded on rocketship-ai-rocketship's pgx query style.
package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// Store is the PostgreSQL-backed change-history log.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pgxpool.Pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const entryColumns = `id, token, username, token_type, token_name, parent, scopes, service,
	expires, actor, action, ip_address, event_time, old_token_name, old_scopes, old_expires`

func scanEntry(row pgx.Row) (*token.ChangeHistoryEntry, error) {
	var e token.ChangeHistoryEntry
	var t token.Type
	var action token.Action
	if err := row.Scan(
		&e.ID, &e.Token, &e.Username, &t, &e.Name, &e.Parent, &e.Scopes, &e.Service,
		&e.Expires, &e.Actor, &action, &e.IPAddress, &e.EventTime,
		&e.OldName, &e.OldScopes, &e.OldExpires,
	); err != nil {
		return nil, err
	}
	e.Type = t
	e.Action = action
	return &e, nil
}

// Add appends a single change-history row. Callers set entry.ID to zero;
// the database assigns it.
func (s *Store) Add(ctx context.Context, entry token.ChangeHistoryEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_change_history
			(token, username, token_type, token_name, parent, scopes, service,
			 expires, actor, action, ip_address, event_time,
			 old_token_name, old_scopes, old_expires)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		entry.Token, entry.Username, entry.Type, entry.Name, entry.Parent, entry.Scopes, entry.Service,
		entry.Expires, entry.Actor, entry.Action, entry.IPAddress, entry.EventTime,
		entry.OldName, entry.OldScopes, entry.OldExpires,
	)
	if err != nil {
		return fmt.Errorf("inserting change history row: %w", err)
	}
	return nil
}

// Filter narrows a history listing. All fields are optional; Key, when
// set, matches rows for that token itself and rows whose parent is that
// token, the one-level-deep reach spec.md §4.4/§9 document: a parent's
// history includes its derived children's edits and revocations, but not
// its grandchildren's.
type Filter struct {
	Username *string
	Actor    *string
	Key      *string
	Since    *time.Time
	Until    *time.Time
}

// Cursor identifies a position in the reverse-chronological history
// stream as "<unix-seconds>_<id>", matching the event_time/id composite
// ordering the event_time index is built on.
type Cursor struct {
	EventTime time.Time
	ID        int64
}

// String renders the cursor in its wire form.
func (c Cursor) String() string {
	return fmt.Sprintf("%d_%d", c.EventTime.Unix(), c.ID)
}

// ParseCursor parses a cursor previously produced by Cursor.String.
func ParseCursor(s string) (Cursor, error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("history: malformed cursor %q", s)
	}
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("history: malformed cursor timestamp: %w", err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("history: malformed cursor id: %w", err)
	}
	return Cursor{EventTime: time.Unix(sec, 0).UTC(), ID: id}, nil
}

// Page is one page of a cursor-paginated history listing.
type Page struct {
	Entries    []token.ChangeHistoryEntry
	Next       *Cursor // nil when this is the last page
	TotalCount int64
}

// List returns one page of history entries matching filter, newest first.
// After is an exclusive cursor: when set, only entries strictly older
// than it are returned. A non-positive limit means 100; a limit above
// 500 is capped at 500.
func (s *Store) List(ctx context.Context, filter Filter, after *Cursor, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Username != nil {
		where = append(where, "username = "+arg(*filter.Username))
	}
	if filter.Actor != nil {
		where = append(where, "actor = "+arg(*filter.Actor))
	}
	if filter.Key != nil {
		where = append(where, "(token = "+arg(*filter.Key)+" OR parent = "+arg(*filter.Key)+")")
	}
	if filter.Since != nil {
		where = append(where, "event_time >= "+arg(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "event_time <= "+arg(*filter.Until))
	}
	if after != nil {
		where = append(where,
			fmt.Sprintf("(event_time, id) < (%s, %s)", arg(after.EventTime), arg(after.ID)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countArgs := append([]any(nil), args...)
	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM token_change_history `+whereClause, countArgs...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting history rows: %w", err)
	}

	limitArg := arg(limit + 1) // fetch one extra row to know if there's a next page
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM token_change_history `+whereClause+`
		 ORDER BY event_time DESC, id DESC LIMIT `+limitArg,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history rows: %w", err)
	}
	defer rows.Close()

	var entries []token.ChangeHistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	page := &Page{TotalCount: total}
	if len(entries) > limit {
		last := entries[limit-1]
		page.Next = &Cursor{EventTime: last.EventTime, ID: last.ID}
		entries = entries[:limit]
	}
	page.Entries = entries
	return page, nil
}

// DeleteOlderThan removes every history row whose event_time is before
// cutoff, implementing the retention sweep described in spec.md §4.6.
// It returns the number of rows removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM token_change_history WHERE event_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old history rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
