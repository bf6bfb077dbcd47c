package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// MemLog is an in-process implementation of Log, for tests and anything
// else that needs a change-history store without a live database.
type MemLog struct {
	mu      sync.Mutex
	entries []token.ChangeHistoryEntry
	nextID  int64
}

// NewMemory returns an empty MemLog.
func NewMemory() *MemLog {
	return &MemLog{}
}

func (m *MemLog) Add(_ context.Context, entry token.ChangeHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, entry)
	return nil
}

func matches(e token.ChangeHistoryEntry, f Filter) bool {
	if f.Username != nil && e.Username != *f.Username {
		return false
	}
	if f.Actor != nil && e.Actor != *f.Actor {
		return false
	}
	if f.Key != nil && e.Token != *f.Key && (e.Parent == nil || *e.Parent != *f.Key) {
		return false
	}
	if f.Since != nil && e.EventTime.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.EventTime.After(*f.Until) {
		return false
	}
	return true
}

func (m *MemLog) List(_ context.Context, filter Filter, after *Cursor, limit int) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var matched []token.ChangeHistoryEntry
	for _, e := range m.entries {
		if matches(e, filter) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].EventTime.Equal(matched[j].EventTime) {
			return matched[i].EventTime.After(matched[j].EventTime)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))

	start := len(matched)
	if after != nil {
		for i, e := range matched {
			if e.EventTime.Before(after.EventTime) ||
				(e.EventTime.Equal(after.EventTime) && e.ID < after.ID) {
				start = i
				break
			}
		}
	} else {
		start = 0
	}

	remaining := matched[start:]
	page := &Page{TotalCount: total}
	if len(remaining) > limit {
		next := Cursor{EventTime: remaining[limit-1].EventTime, ID: remaining[limit-1].ID}
		page.Next = &next
		remaining = remaining[:limit]
	}
	page.Entries = append([]token.ChangeHistoryEntry(nil), remaining...)
	return page, nil
}

func (m *MemLog) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []token.ChangeHistoryEntry
	var removed int64
	for _, e := range m.entries {
		if e.EventTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}
