package tokenservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gafaelfawr/gafaelfawr/pkg/history"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

func TestDeleteMissingReturnsFalse(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ok, err := svc.Delete(context.Background(), "missing", adminAuth(), nil, "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteCascadesToChildren(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()

	parentAuth := userAuth("alice", "read:all", "exec:notebook")
	parentTok, err := svc.CreateUserToken(ctx, parentAuth, "alice", "laptop", []string{"read:all", "exec:notebook"}, nil, "127.0.0.1")
	require.NoError(t, err)

	parentData, err := svc.kv.GetData(ctx, parentTok)
	require.NoError(t, err)

	childTok, err := svc.GetNotebookToken(ctx, *parentData, "127.0.0.1")
	require.NoError(t, err)

	ok, err := svc.Delete(ctx, parentTok.Key, adminAuth(), nil, "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.kv.GetData(ctx, parentTok)
	assert.Error(t, err, "parent must be gone from kv")
	_, err = svc.kv.GetData(ctx, childTok)
	assert.Error(t, err, "child must be gone from kv")

	info, err := svc.db.GetInfo(ctx, parentTok.Key)
	require.NoError(t, err)
	assert.Nil(t, info)
	info, err = svc.db.GetInfo(ctx, childTok.Key)
	require.NoError(t, err)
	assert.Nil(t, info)

	page, err := svc.history.List(ctx, history.Filter{}, nil, 10)
	require.NoError(t, err)
	var revokes int
	for _, e := range page.Entries {
		if e.Action == token.ActionRevoke {
			revokes++
		}
	}
	assert.Equal(t, 2, revokes, "both parent and child must have a revoke history entry")
}

func TestDeleteOwnerMismatchReturnsFalse(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()

	auth := userAuth("alice", "read:all")
	tok, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	bob := "bob"
	ok, err := svc.Delete(ctx, tok.Key, adminAuth(), &bob, "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
}
