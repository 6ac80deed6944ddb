package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	SetClient(rdb)
	t.Cleanup(func() {
		SetClient(nil)
		_ = rdb.Close()
		mr.Close()
	})
	return mr
}

func TestFirstView_DedupsWithinWindow(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	assert.True(t, FirstView(ctx, "Deal", 1, "visitor-a"))
	assert.False(t, FirstView(ctx, "Deal", 1, "visitor-a"))
	assert.True(t, FirstView(ctx, "Deal", 1, "visitor-b"))
	assert.True(t, FirstView(ctx, "Free", 1, "visitor-a"))

	mr.FastForward(ViewDedupWindow + time.Second)
	assert.True(t, FirstView(ctx, "Deal", 1, "visitor-a"))
}

func TestFirstView_FailsOpenWithoutRedis(t *testing.T) {
	SetClient(nil)
	assert.True(t, FirstView(context.Background(), "Deal", 1, "visitor-a"))
	assert.True(t, FirstView(context.Background(), "Deal", 1, "visitor-a"))
}

func TestCachedCount(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()

	calls := 0
	load := func() (int64, error) {
		calls++
		return 3, nil
	}

	n, err := CachedCount(ctx, UnseenKey(9), load)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = CachedCount(ctx, UnseenKey(9), load)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, calls)

	InvalidateUnseen(ctx, 9)
	_, err = CachedCount(ctx, UnseenKey(9), load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
