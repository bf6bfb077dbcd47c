package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

func entryAt(tm time.Time, tok, username string) token.ChangeHistoryEntry {
	return token.ChangeHistoryEntry{
		Token:     tok,
		Username:  username,
		Type:      token.TypeUser,
		Actor:     username,
		Action:    token.ActionCreate,
		IPAddress: "127.0.0.1",
		EventTime: tm,
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{EventTime: time.Unix(1700000000, 0).UTC(), ID: 42}
	parsed, err := ParseCursor(c.String())
	require.NoError(t, err)
	assert.Equal(t, c.ID, parsed.ID)
	assert.True(t, c.EventTime.Equal(parsed.EventTime))
}

func TestParseCursorMalformed(t *testing.T) {
	_, err := ParseCursor("not-a-cursor")
	assert.Error(t, err)
	_, err = ParseCursor("abc_42")
	assert.Error(t, err)
}

func TestMemLogListOrderingAndPagination(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Add(ctx, entryAt(base.Add(time.Duration(i)*time.Minute), "key1", "alice")))
	}

	page, err := log.List(ctx, Filter{}, nil, 2)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, int64(5), page.TotalCount)
	require.NotNil(t, page.Next)
	assert.True(t, page.Entries[0].EventTime.After(page.Entries[1].EventTime), "must be newest first")

	page2, err := log.List(ctx, Filter{}, page.Next, 2)
	require.NoError(t, err)
	require.Len(t, page2.Entries, 2)
	assert.True(t, page2.Entries[0].EventTime.Before(page.Entries[1].EventTime))

	page3, err := log.List(ctx, Filter{}, page2.Next, 2)
	require.NoError(t, err)
	require.Len(t, page3.Entries, 1)
	assert.Nil(t, page3.Next, "last page must not carry a cursor")
}

func TestMemLogFilterByUsername(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)
	require.NoError(t, log.Add(ctx, entryAt(base, "key1", "alice")))
	require.NoError(t, log.Add(ctx, entryAt(base, "key2", "bob")))

	alice := "alice"
	page, err := log.List(ctx, Filter{Username: &alice}, nil, 100)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "key1", page.Entries[0].Token)
}

func TestMemLogFilterByKeyIncludesDirectChildren(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	parentEntry := entryAt(base, "parent", "alice")
	require.NoError(t, log.Add(ctx, parentEntry))

	childEntry := entryAt(base.Add(time.Minute), "child", "alice")
	parentKey := "parent"
	childEntry.Parent = &parentKey
	require.NoError(t, log.Add(ctx, childEntry))

	grandchildEntry := entryAt(base.Add(2*time.Minute), "grandchild", "alice")
	childKey := "child"
	grandchildEntry.Parent = &childKey
	require.NoError(t, log.Add(ctx, grandchildEntry))

	unrelatedEntry := entryAt(base, "unrelated", "alice")
	require.NoError(t, log.Add(ctx, unrelatedEntry))

	key := "parent"
	page, err := log.List(ctx, Filter{Key: &key}, nil, 100)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2, "key filter must match the token itself and its direct children")

	var tokens []string
	for _, e := range page.Entries {
		tokens = append(tokens, e.Token)
	}
	assert.ElementsMatch(t, []string{"parent", "child"}, tokens)
}

func TestMemLogDeleteOlderThan(t *testing.T) {
	log := NewMemory()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, log.Add(ctx, entryAt(now.Add(-48*time.Hour), "old", "alice")))
	require.NoError(t, log.Add(ctx, entryAt(now, "new", "alice")))

	removed, err := log.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	page, err := log.List(ctx, Filter{}, nil, 100)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "new", page.Entries[0].Token)
}
