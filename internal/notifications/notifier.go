package notifications

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"

	"marketplace/internal/observability"

	"github.com/redis/go-redis/v9"
)

const userChannelPrefix = "notifications:user:"

// Bridge carries realtime payloads from delivery workers to the processes holding sessions.
type Bridge interface {
	Publish(ctx context.Context, userID uint, payload string) error
	Subscribe(ctx context.Context, onMessage func(channel, payload string)) error
}

// NewBridge returns the Redis bridge when a client is configured, the in-process one otherwise.
func NewBridge(rdb *redis.Client) Bridge {
	if rdb == nil {
		return NewLocalBridge()
	}
	return NewNotifier(rdb)
}

// Notifier publishes notification payloads into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Publish sends a payload to the user's channel.
func (n *Notifier) Publish(ctx context.Context, userID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// Subscribe listens on `notifications:user:*` and calls onMessage for each message
// until ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context, onMessage func(channel, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				dispatchSafely(onMessage, msg.Channel, msg.Payload)
			}
		}
	}()

	return nil
}

// LocalBridge delivers payloads to subscribers of the same process.
type LocalBridge struct {
	mu       sync.RWMutex
	handlers []func(channel, payload string)
}

// NewLocalBridge creates an in-process bridge.
func NewLocalBridge() *LocalBridge {
	return &LocalBridge{}
}

func (b *LocalBridge) Publish(_ context.Context, userID uint, payload string) error {
	b.mu.RLock()
	handlers := append(([]func(string, string))(nil), b.handlers...)
	b.mu.RUnlock()

	channel := UserChannel(userID)
	for _, h := range handlers {
		dispatchSafely(h, channel, payload)
	}
	return nil
}

func (b *LocalBridge) Subscribe(ctx context.Context, onMessage func(channel, payload string)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, onMessage)
	idx := len(b.handlers) - 1
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.handlers[idx] = func(string, string) {}
		b.mu.Unlock()
	}()
	return nil
}

func dispatchSafely(onMessage func(channel, payload string), channel, payload string) {
	defer func() {
		if r := recover(); r != nil {
			observability.GlobalLogger.Error("panic in notification subscriber",
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	onMessage(channel, payload)
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}
