package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	ViewKeyPrefix    = "views:%s:%d:%s"
	UnseenKeyPrefix  = "notifications:unseen:%d"
	ViewDedupWindow  = time.Hour
	UnseenCountTTL   = 2 * time.Minute
	operationTimeout = 500 * time.Millisecond
)

func ViewKey(postType string, postID uint, visitor string) string {
	return fmt.Sprintf(ViewKeyPrefix, postType, postID, visitor)
}

func UnseenKey(userID uint) string {
	return fmt.Sprintf(UnseenKeyPrefix, userID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUnseen(ctx context.Context, userID uint) {
	Invalidate(ctx, UnseenKey(userID))
}
