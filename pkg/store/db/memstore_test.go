package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

func sampleInfo(key, username string) token.Info {
	name := "laptop"
	return token.Info{
		Token:    key,
		Username: username,
		Type:     token.TypeUser,
		Scopes:   []string{"read:all"},
		Created:  time.Now().Truncate(time.Second),
		Name:     &name,
	}
}

func TestMemStoreAddAndGetInfo(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	info := sampleInfo("key1", "alice")
	require.NoError(t, store.Add(ctx, info))

	got, err := store.GetInfo(ctx, "key1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "laptop", *got.Name)
}

func TestMemStoreAddDuplicateNameRejected(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, sampleInfo("key1", "alice")))
	err := store.Add(ctx, sampleInfo("key2", "alice"))
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestMemStoreAddDuplicateNameAllowedAcrossUsers(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, sampleInfo("key1", "alice")))
	assert.NoError(t, store.Add(ctx, sampleInfo("key2", "bob")))
}

func TestMemStoreGetInfoMissing(t *testing.T) {
	store := NewMemory()
	got, err := store.GetInfo(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemStoreModify(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, sampleInfo("key1", "alice")))

	newName := "desktop"
	expires := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	got, err := store.Modify(ctx, "key1", ModifyParams{
		Name: &newName, HasName: true,
		Scopes: []string{"write:all", "read:all"}, HasScopes: true,
		Expires: &expires, HasExpires: true,
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "desktop", *got.Name)
	assert.Equal(t, []string{"read:all", "write:all"}, got.Scopes)
	assert.True(t, got.Expires.Equal(expires))
}

func TestMemStoreModifyMissing(t *testing.T) {
	store := NewMemory()
	got, err := store.Modify(context.Background(), "missing", ModifyParams{HasName: true})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemStoreDelete(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, sampleInfo("key1", "alice")))

	deleted, err := store.Delete(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "key1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemStoreGetChildrenBreadthFirst(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	root := sampleInfo("root", "alice")
	require.NoError(t, store.Add(ctx, root))

	child := sampleInfo("child", "alice")
	child.Type = token.TypeNotebook
	child.Parent = strPtr("root")
	require.NoError(t, store.Add(ctx, child))

	grandchild := sampleInfo("grandchild", "alice")
	grandchild.Type = token.TypeInternal
	grandchild.Parent = strPtr("child")
	require.NoError(t, store.Add(ctx, grandchild))

	children, err := store.GetChildren(ctx, "root")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "child", children[0].Token, "direct children must come before grandchildren")
	assert.Equal(t, "grandchild", children[1].Token)
}

func TestMemStoreListTokensFiltersByUsername(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, sampleInfo("key1", "alice")))
	require.NoError(t, store.Add(ctx, sampleInfo("key2", "bob")))

	alice := "alice"
	tokens, err := store.ListTokens(ctx, &alice)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "key1", tokens[0].Token)

	all, err := store.ListTokens(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemStoreListOrphaned(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	orphan := sampleInfo("orphan", "alice")
	orphan.Parent = strPtr("never-existed")
	require.NoError(t, store.Add(ctx, orphan))

	root := sampleInfo("root", "alice")
	require.NoError(t, store.Add(ctx, root))
	child := sampleInfo("child", "alice")
	child.Parent = strPtr("root")
	require.NoError(t, store.Add(ctx, child))

	orphans, err := store.ListOrphaned(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "orphan", orphans[0].Token)
}

func TestMemStoreDeleteExpired(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	expired := sampleInfo("expired", "alice")
	past := now.Add(-time.Hour)
	expired.Expires = &past
	require.NoError(t, store.Add(ctx, expired))

	live := sampleInfo("live", "alice")
	future := now.Add(time.Hour)
	live.Expires = &future
	require.NoError(t, store.Add(ctx, live))

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "expired", removed[0].Token)

	remaining, err := store.GetInfo(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, remaining)
}

func TestMemStoreAdmins(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	is, err := store.IsAdmin(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, is)

	require.NoError(t, store.AddAdmin(ctx, "alice"))
	is, err = store.IsAdmin(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, is)

	list, err := store.ListAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, list)

	require.NoError(t, store.RemoveAdmin(ctx, "alice"))
	is, err = store.IsAdmin(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, is)
}

func strPtr(s string) *string { return &s }
