package tokenservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
)

func TestAdminManagementRequiresAdmin(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()

	err := svc.AddAdmin(ctx, userAuth("alice", "read:all"), "bob")
	assert.True(t, apierrors.IsPermissionDenied(err))

	require.NoError(t, svc.AddAdmin(ctx, adminAuth(), "bob"))

	admins, err := svc.ListAdmins(ctx, adminAuth())
	require.NoError(t, err)
	assert.Contains(t, admins, "bob")

	require.NoError(t, svc.RemoveAdmin(ctx, adminAuth(), "bob"))
	admins, err = svc.ListAdmins(ctx, adminAuth())
	require.NoError(t, err)
	assert.NotContains(t, admins, "bob")
}
