package tokenservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gafaelfawr/gafaelfawr/pkg/store/db"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

func TestAuditCleanStateProducesNoAlerts(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	auth := userAuth("alice", "read:all")
	_, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	alerts, err := svc.Audit(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestAuditDetectsScopeDivergenceAndFixes(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	auth := userAuth("alice", "read:all", "write:all")
	tok, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	// Force a divergence directly against the relational store, bypassing
	// the service, to simulate the historical update bug the audit pass
	// exists to catch.
	_, err = svc.db.Modify(ctx, tok.Key, db.ModifyParams{Scopes: []string{"read:all", "write:all"}, HasScopes: true})
	require.NoError(t, err)

	alerts, err := svc.Audit(ctx, true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFieldMismatch, alerts[0].Kind)
	assert.True(t, alerts[0].Fixed)

	info, err := svc.db.GetInfo(ctx, tok.Key)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:all"}, info.Scopes, "fix must pull relational scopes from kv, the canonical side")
}

func TestAuditDetectsExpiresDivergenceAndFixes(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	auth := userAuth("alice", "read:all")
	tok, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	bogusExpires := time.Now().Add(time.Hour).Truncate(time.Second)
	_, err = svc.db.Modify(ctx, tok.Key, db.ModifyParams{Expires: &bogusExpires, HasExpires: true})
	require.NoError(t, err)

	alerts, err := svc.Audit(ctx, true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFieldMismatch, alerts[0].Kind)
	assert.True(t, alerts[0].Fixed)

	info, err := svc.db.GetInfo(ctx, tok.Key)
	require.NoError(t, err)
	assert.Nil(t, info.Expires, "fix must pull relational expires from kv, the canonical side")
}

func TestAuditDetectsUsernameTypeAndCreatedDivergence(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()
	auth := userAuth("alice", "read:all")
	tok, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	info, err := svc.db.GetInfo(ctx, tok.Key)
	require.NoError(t, err)
	_, err = svc.db.Delete(ctx, tok.Key)
	require.NoError(t, err)

	info.Username = "bob"
	info.Type = token.TypeService
	info.Created = info.Created.Add(-time.Hour)
	require.NoError(t, svc.db.Add(ctx, *info))

	alerts, err := svc.Audit(ctx, false)
	require.NoError(t, err)

	var mismatches int
	for _, a := range alerts {
		if a.Kind == AlertFieldMismatch {
			mismatches++
		}
	}
	assert.Equal(t, 3, mismatches, "username, type, and created must each raise their own mismatch alert")
}

func TestAuditDetectsOrphanedParent(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	ctx := context.Background()

	auth := userAuth("alice", "read:all")
	tok, err := svc.CreateUserToken(ctx, auth, "alice", "laptop", []string{"read:all"}, nil, "127.0.0.1")
	require.NoError(t, err)

	bogusParent := "never-existed"
	info, err := svc.db.GetInfo(ctx, tok.Key)
	require.NoError(t, err)
	_, err = svc.db.Delete(ctx, tok.Key)
	require.NoError(t, err)
	info.Parent = &bogusParent
	require.NoError(t, svc.db.Add(ctx, *info))

	alerts, err := svc.Audit(ctx, false)
	require.NoError(t, err)

	var found bool
	for _, a := range alerts {
		if a.Kind == AlertOrphanedParent {
			found = true
		}
	}
	assert.True(t, found)
}
