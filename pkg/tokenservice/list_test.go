package tokenservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/history"
)

func TestListTokensSelfAllowed(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	auth := userAuth("alice", "read:all")
	_, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	owner := "alice"
	tokens, err := svc.ListTokens(ctx, auth, &owner)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestListTokensOtherUserDenied(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	owner := "bob"
	_, err := svc.ListTokens(context.Background(), userAuth("alice", "read:all"), &owner)
	assert.True(t, apierrors.IsPermissionDenied(err))
}

func TestListTokensAllRequiresAdmin(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	_, err := svc.ListTokens(context.Background(), userAuth("alice", "read:all"), nil)
	assert.True(t, apierrors.IsPermissionDenied(err))

	_, err = svc.ListTokens(context.Background(), adminAuth(), nil)
	assert.NoError(t, err)
}

func TestGetChangeHistoryScopedToSelf(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	auth := userAuth("alice", "read:all")
	_, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	alice := "alice"
	page, err := svc.GetChangeHistory(ctx, auth, history.Filter{Username: &alice}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 1)

	bob := "bob"
	_, err = svc.GetChangeHistory(ctx, auth, history.Filter{Username: &bob}, nil, 10)
	assert.True(t, apierrors.IsPermissionDenied(err))
}
