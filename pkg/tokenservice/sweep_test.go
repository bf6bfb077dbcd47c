package tokenservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gafaelfawr/gafaelfawr/pkg/history"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

func TestExpireTokensSweepsAndRecordsHistory(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	require.NoError(t, svc.db.Add(ctx, token.Info{
		Token: "stale", Username: "alice", Type: token.TypeUser, Expires: &past,
	}))

	require.NoError(t, svc.ExpireTokens(ctx))

	info, err := svc.db.GetInfo(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, info)

	page, err := svc.history.List(ctx, history.Filter{}, nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, token.ActionExpire, page.Entries[0].Action)
	assert.Equal(t, token.InternalActor, page.Entries[0].Actor)
}

func TestTruncateHistoryDeletesOldEntries(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	svc.cfg.HistoryRetention = 24 * time.Hour

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, svc.history.Add(ctx, token.ChangeHistoryEntry{
		Token: "x", Username: "alice", Type: token.TypeUser, Actor: "alice",
		Action: token.ActionCreate, EventTime: old,
	}))

	require.NoError(t, svc.TruncateHistory(ctx))

	page, err := svc.history.List(ctx, history.Filter{}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
}
