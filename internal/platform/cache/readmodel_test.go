package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestReadModel(t *testing.T) *ReadModel {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReadModel(client, time.Minute)
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	rm := newTestReadModel(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return []string{"REQ-2026-00001"}, nil
	}

	key, err := rm.BuildKey(ctx, "requests", "list", "all")
	require.NoError(t, err)

	var first []string
	require.NoError(t, rm.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, []string{"REQ-2026-00001"}, first)
	require.Equal(t, 1, calls)

	var second []string
	require.NoError(t, rm.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, first, second)
	require.Equal(t, 1, calls, "second fetch must come from cache")
}

func TestInvalidateRotatesKeys(t *testing.T) {
	rm := newTestReadModel(t)
	ctx := context.Background()

	before, err := rm.BuildKey(ctx, "audits", "detail", "7")
	require.NoError(t, err)

	require.NoError(t, rm.Invalidate(ctx, "audits"))

	after, err := rm.BuildKey(ctx, "audits", "detail", "7")
	require.NoError(t, err)
	require.NotEqual(t, before, after, "invalidation must bump the scope version")
}

func TestNilClientIsPassThrough(t *testing.T) {
	rm := NewReadModel(nil, time.Minute)
	ctx := context.Background()

	calls := 0
	var dest int
	loader := func(context.Context) (any, error) {
		calls++
		return 42, nil
	}

	require.NoError(t, rm.FetchJSON(ctx, "any", &dest, loader))
	require.NoError(t, rm.FetchJSON(ctx, "any", &dest, loader))
	require.Equal(t, 2, calls, "nil client must always run the loader")
	require.Equal(t, 42, dest)

	require.NoError(t, rm.Invalidate(ctx, "requests"))
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	rm := newTestReadModel(t)
	ctx := context.Background()

	wantErr := errors.New("boom")
	var dest int
	err := rm.FetchJSON(ctx, "k", &dest, func(context.Context) (any, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestInvalidatePublishesScope(t *testing.T) {
	rm := newTestReadModel(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	go func() {
		_ = rm.ListenForInvalidation(ctx, func(scope string) {
			got <- scope
		})
	}()

	// Give the subscriber a moment to attach.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, rm.Invalidate(ctx, "purchase-orders"))

	select {
	case scope := <-got:
		require.Equal(t, "purchase-orders", scope)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation was not announced")
	}
}
