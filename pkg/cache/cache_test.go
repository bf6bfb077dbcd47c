package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

func alwaysLive(token.Token) bool { return true }

func TestBuildKeyIsOrderIndependentOnScopes(t *testing.T) {
	svc := "http"
	a := BuildKey("parentkey", token.TypeInternal, &svc, []string{"read:all", "exec:notebook"})
	b := BuildKey("parentkey", token.TypeInternal, &svc, []string{"exec:notebook", "read:all"})
	assert.Equal(t, a, b)
}

func TestBuildKeyDistinguishesService(t *testing.T) {
	svc1, svc2 := "http", "other"
	a := BuildKey("parentkey", token.TypeInternal, &svc1, []string{"read:all"})
	b := BuildKey("parentkey", token.TypeInternal, &svc2, []string{"read:all"})
	assert.NotEqual(t, a, b)
}

func TestGetOrCreateMemoizes(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	var calls int32
	create := func(ctx context.Context) (token.Token, error) {
		atomic.AddInt32(&calls, 1)
		return token.NewToken()
	}

	tok1, err := c.GetOrCreate(context.Background(), "key", alwaysLive, create)
	require.NoError(t, err)
	tok2, err := c.GetOrCreate(context.Background(), "key", alwaysLive, create)
	require.NoError(t, err)

	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int32(1), calls)
}

func TestGetOrCreateCollapsesConcurrentCallers(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	var calls int32
	start := make(chan struct{})
	create := func(ctx context.Context) (token.Token, error) {
		atomic.AddInt32(&calls, 1)
		<-start
		return token.NewToken()
	}

	var wg sync.WaitGroup
	results := make([]token.Token, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := c.GetOrCreate(context.Background(), "shared-key", alwaysLive, create)
			require.NoError(t, err)
			results[i] = tok
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls, "concurrent callers for the same key must share one creation")
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestGetOrCreateSkipsStaleEntry(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	first, err := c.GetOrCreate(context.Background(), "key", alwaysLive, func(ctx context.Context) (token.Token, error) {
		return token.NewToken()
	})
	require.NoError(t, err)

	neverLive := func(token.Token) bool { return false }
	second, err := c.GetOrCreate(context.Background(), "key", neverLive, func(ctx context.Context) (token.Token, error) {
		return token.NewToken()
	})
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "a cached entry deemed no longer live must be recreated")
}

func TestInvalidateAndPurge(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	var calls int32
	create := func(ctx context.Context) (token.Token, error) {
		atomic.AddInt32(&calls, 1)
		return token.NewToken()
	}

	_, err = c.GetOrCreate(context.Background(), "key", alwaysLive, create)
	require.NoError(t, err)
	c.Invalidate("key")
	_, err = c.GetOrCreate(context.Background(), "key", alwaysLive, create)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)

	c.Purge()
	_, err = c.GetOrCreate(context.Background(), "key", alwaysLive, create)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls)
}
