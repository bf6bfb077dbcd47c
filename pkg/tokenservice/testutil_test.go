package tokenservice

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	tcache "github.com/gafaelfawr/gafaelfawr/pkg/cache"
	"github.com/gafaelfawr/gafaelfawr/pkg/gfconfig"
	"github.com/gafaelfawr/gafaelfawr/pkg/history"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/db"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/kv"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kvStore := kv.New(client, "")
	relStore := db.NewMemory()
	historyLog := history.NewMemory()
	tokenCache, err := tcache.New(100)
	require.NoError(t, err)

	cfg := &gfconfig.Config{
		SessionLifetime:  time.Hour,
		MinimumLifetime:  5 * time.Minute,
		DerivedLifetime:  24 * time.Hour,
		HistoryRetention: 365 * 24 * time.Hour,
		KnownScopes: map[string]string{
			"user:token":    "",
			"admin:token":   "",
			"read:all":      "",
			"write:all":     "",
			"exec:notebook": "",
		},
	}

	svc := New(kvStore, relStore, historyLog, tokenCache, cfg)
	return svc, mr
}

func adminAuth() AuthInfo {
	return AuthInfo{Username: "admin", Scopes: []string{AdminScope}}
}

func userAuth(username string, scopes ...string) AuthInfo {
	return AuthInfo{Username: username, Scopes: append([]string{UserScope}, scopes...)}
}
