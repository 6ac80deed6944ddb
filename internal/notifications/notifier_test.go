package notifications

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_PublishWithoutRedis(t *testing.T) {
	// Notifier with nil Redis should return nil error (fail-open/noop)
	n := NewNotifier(nil)
	assert.NoError(t, n.Publish(context.Background(), 1, "test payload"))
	assert.NoError(t, n.Subscribe(context.Background(), func(string, string) {}))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		userID   uint
		expected string
	}{
		{1, "notifications:user:1"},
		{100, "notifications:user:100"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, UserChannel(tt.userID))
	}
}

func TestNewBridge(t *testing.T) {
	_, isLocal := NewBridge(nil).(*LocalBridge)
	assert.True(t, isLocal)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = rdb.Close() }()
	_, isRedis := NewBridge(rdb).(*Notifier)
	assert.True(t, isRedis)
}

func TestNotifier_RoutesToRegistry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	reg := NewSessionRegistry(decodeNumeric, nil)
	defer func() { _ = reg.Shutdown(context.Background()) }()
	s := &fakeSession{}
	_, err = reg.OnSessionStart("c", "21", s)
	require.NoError(t, err)

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, reg.StartWiring(ctx, n))

	require.NoError(t, n.Publish(context.Background(), 21, `{"type":"unseen-count"}`))
	require.NoError(t, n.Publish(context.Background(), 22, `{"type":"elsewhere"}`))

	assert.Eventually(t, func() bool {
		return len(s.received()) == 1
	}, testEventuallyTimeout, testPollInterval)
	assert.Equal(t, `{"type":"unseen-count"}`, s.received()[0])
}

func TestNotifier_StopsOnCancel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received int32
	payloads := make(chan string, 2)
	require.NoError(t, n.Subscribe(ctx, func(_ string, payload string) {
		atomic.AddInt32(&received, 1)
		payloads <- payload
	}))

	require.NoError(t, n.Publish(context.Background(), 1, "before-cancel"))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)

	// Drain the pre-cancel message to avoid false positives.
	select {
	case <-payloads:
	default:
	}

	require.NoError(t, n.Publish(context.Background(), 1, "after-cancel"))
	assert.Never(t, func() bool {
		select {
		case payload := <-payloads:
			return payload == "after-cancel"
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestLocalBridge_RecoversFromPanickingSubscriber(t *testing.T) {
	b := NewLocalBridge()
	ctx := context.Background()

	var got int32
	require.NoError(t, b.Subscribe(ctx, func(string, string) { panic("boom") }))
	require.NoError(t, b.Subscribe(ctx, func(channel, _ string) {
		if channel == UserChannel(5) {
			atomic.AddInt32(&got, 1)
		}
	}))

	require.NoError(t, b.Publish(ctx, 5, "x"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&got))
}
