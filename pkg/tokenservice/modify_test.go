package tokenservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

func TestModifyRequiresAdmin(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	auth := userAuth("alice", "read:all")
	tok, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	_, err = svc.Modify(ctx, tok.Key, auth, nil, "127.0.0.1", ModifyRequest{})
	assert.True(t, apierrors.IsPermissionDenied(err))
}

func TestModifyMissingToken(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	_, err := svc.Modify(context.Background(), "missing", adminAuth(), nil, "127.0.0.1", ModifyRequest{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestModifyNonUserTokenRejected(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	tok, err := svc.CreateSessionToken(ctx, "alice", token.UserMetadata{}, []string{"read:all"}, "127.0.0.1")
	require.NoError(t, err)

	_, err = svc.Modify(ctx, tok.Key, adminAuth(), nil, "127.0.0.1", ModifyRequest{HasName: true})
	assert.True(t, apierrors.IsInvalidRequest(err))
}

func TestModifyUnknownScopeRejected(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	auth := userAuth("alice", "read:all")
	tok, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	_, err = svc.Modify(ctx, tok.Key, adminAuth(), nil, "127.0.0.1", ModifyRequest{
		Scopes: []string{"delete:everything"}, HasScopes: true,
	})
	assert.True(t, apierrors.IsInvalidScopes(err))
}

func TestModifyUpdatesNameScopesAndExpires(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	auth := userAuth("alice", "read:all", "write:all")
	tok, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	newName := "desktop"
	newExpires := time.Now().Add(time.Hour)
	info, err := svc.Modify(ctx, tok.Key, adminAuth(), nil, "127.0.0.1", ModifyRequest{
		Name: &newName, HasName: true,
		Scopes: []string{"write:all", "read:all"}, HasScopes: true,
		Expires: &newExpires, HasExpires: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "desktop", *info.Name)
	assert.Equal(t, []string{"read:all", "write:all"}, info.Scopes)

	data, err := svc.kv.GetDataByKey(ctx, tok.Key)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:all", "write:all"}, data.Scopes)
}

func TestModifyNarrowingCascadesToChildren(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()

	farFuture := time.Now().Add(time.Hour)
	auth := userAuth("alice", "read:all", "exec:notebook")
	parentTok, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all", "exec:notebook"}, &farFuture, "127.0.0.1")
	require.NoError(t, err)

	parentData, err := svc.kv.GetData(ctx, parentTok)
	require.NoError(t, err)

	childTok, err := svc.GetNotebookToken(ctx, *parentData, "127.0.0.1")
	require.NoError(t, err)

	newExpires := time.Now().Add(10 * time.Minute)
	_, err = svc.Modify(ctx, parentTok.Key, adminAuth(), nil, "127.0.0.1", ModifyRequest{Expires: &newExpires, HasExpires: true})
	require.NoError(t, err)

	childInfo, err := svc.db.GetInfo(ctx, childTok.Key)
	require.NoError(t, err)
	require.NotNil(t, childInfo)
	assert.True(t, childInfo.Expires.Equal(newExpires.Truncate(time.Second)), "child expires must be pulled in to match the new parent bound")
}
