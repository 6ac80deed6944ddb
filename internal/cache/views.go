package cache

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// FirstView reports whether visitor has not viewed the post within the dedup window.
// It fails open: without Redis, or on a Redis error, every view counts.
func FirstView(ctx context.Context, postType string, postID uint, visitor string) bool {
	if client == nil || visitor == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	ok, err := client.SetNX(ctx, ViewKey(postType, postID, visitor), 1, ViewDedupWindow).Result()
	if err != nil {
		return true
	}
	return ok
}

// CachedCount reads a counter cached under key, calling load on a miss.
func CachedCount(ctx context.Context, key string, load func() (int64, error)) (int64, error) {
	if client != nil {
		raw, err := client.Get(ctx, key).Result()
		if err == nil {
			if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
				return n, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return load()
		}
	}

	n, err := load()
	if err != nil {
		return 0, err
	}
	if client != nil {
		client.Set(ctx, key, n, UnseenCountTTL)
	}
	return n, nil
}
