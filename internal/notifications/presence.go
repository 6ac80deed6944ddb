package notifications

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"marketplace/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPresenceOnlineSetKey  = "ws:online_users"
	defaultPresenceLastSeenKeyNS = "ws:last_seen:"
	defaultPresenceTTL           = 90 * time.Second
	defaultOfflineGrace          = 5 * time.Second
	defaultReaperInterval        = 60 * time.Second
)

// PresenceConfig controls Redis presence and cleanup behavior.
type PresenceConfig struct {
	OnlineSetKey       string
	LastSeenKeyPrefix  string
	LastSeenTTL        time.Duration
	OfflineGracePeriod time.Duration
	ReaperInterval     time.Duration
}

// Presence counts local sessions per user and mirrors who is online in Redis, so a
// delivery worker in any process can tell whether the receiver has a live session.
// A user goes offline only after the grace window passes without a reconnect.
type Presence struct {
	rdb *redis.Client

	mu            sync.RWMutex
	localCounts   map[uint]int
	offlineTimers map[uint]*time.Timer
	offline       map[uint]bool

	onlineSetKey      string
	lastSeenKeyPrefix string
	lastSeenTTL       time.Duration
	offlineGrace      time.Duration
	reaperInterval    time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPresence creates a tracker and starts the Redis reaper when Redis is available.
func NewPresence(rdb *redis.Client, cfg PresenceConfig) *Presence {
	p := &Presence{
		rdb:               rdb,
		localCounts:       make(map[uint]int),
		offlineTimers:     make(map[uint]*time.Timer),
		offline:           make(map[uint]bool),
		onlineSetKey:      defaultPresenceOnlineSetKey,
		lastSeenKeyPrefix: defaultPresenceLastSeenKeyNS,
		lastSeenTTL:       defaultPresenceTTL,
		offlineGrace:      defaultOfflineGrace,
		reaperInterval:    defaultReaperInterval,
		stopCh:            make(chan struct{}),
	}

	if cfg.OnlineSetKey != "" {
		p.onlineSetKey = cfg.OnlineSetKey
	}
	if cfg.LastSeenKeyPrefix != "" {
		p.lastSeenKeyPrefix = cfg.LastSeenKeyPrefix
	}
	if cfg.LastSeenTTL > 0 {
		p.lastSeenTTL = cfg.LastSeenTTL
	}
	if cfg.OfflineGracePeriod > 0 {
		p.offlineGrace = cfg.OfflineGracePeriod
	}
	if cfg.ReaperInterval > 0 {
		p.reaperInterval = cfg.ReaperInterval
	}

	if p.rdb != nil {
		go p.reaperLoop()
	}
	return p
}

// SetOfflineGracePeriod changes the reconnect window.
func (p *Presence) SetOfflineGracePeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.offlineGrace = d
	p.mu.Unlock()
}

// Stop ends the reaper and pending offline timers.
func (p *Presence) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.mu.Lock()
		for userID, timer := range p.offlineTimers {
			timer.Stop()
			delete(p.offlineTimers, userID)
		}
		p.mu.Unlock()
	})
}

// Register counts one more local session for the user.
func (p *Presence) Register(ctx context.Context, userID uint) {
	p.mu.Lock()
	if t, ok := p.offlineTimers[userID]; ok {
		t.Stop()
		delete(p.offlineTimers, userID)
	}
	p.localCounts[userID]++
	p.offline[userID] = false
	p.mu.Unlock()

	p.Touch(ctx, userID)
}

// Touch refreshes the user's last-seen mark in Redis.
func (p *Presence) Touch(ctx context.Context, userID uint) {
	if p.rdb == nil {
		return
	}
	uid := strconv.FormatUint(uint64(userID), 10)
	if err := p.rdb.SAdd(ctx, p.onlineSetKey, uid).Err(); err != nil {
		observability.GlobalLogger.Warn("presence SADD failed", slog.Uint64("user_id", uint64(userID)), observability.ErrAttr(err))
	}
	if err := p.rdb.SetEx(ctx, p.lastSeenKey(userID), strconv.FormatInt(time.Now().Unix(), 10), p.lastSeenTTL).Err(); err != nil {
		observability.GlobalLogger.Warn("presence SETEX failed", slog.Uint64("user_id", uint64(userID)), observability.ErrAttr(err))
	}
}

// Unregister drops one local session. The last one starts the offline grace timer.
func (p *Presence) Unregister(ctx context.Context, userID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n, ok := p.localCounts[userID]; ok {
		n--
		if n > 0 {
			p.localCounts[userID] = n
			return
		}
		delete(p.localCounts, userID)
	}

	if t, ok := p.offlineTimers[userID]; ok {
		t.Stop()
	}
	p.offlineTimers[userID] = time.AfterFunc(p.offlineGrace, func() {
		p.finalizeOffline(context.Background(), userID)
	})
}

// IsOnline reports whether the user has a local session or a fresh Redis mark.
func (p *Presence) IsOnline(ctx context.Context, userID uint) bool {
	p.mu.RLock()
	local := p.localCounts[userID] > 0
	pending := p.offlineTimers[userID] != nil
	p.mu.RUnlock()
	if local || pending {
		return true
	}

	if p.rdb == nil {
		return false
	}
	exists, err := p.rdb.Exists(ctx, p.lastSeenKey(userID)).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

func (p *Presence) isMarkedOffline(userID uint) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offline[userID]
}

// reapOnce drops online set members whose last-seen mark expired.
func (p *Presence) reapOnce(ctx context.Context) {
	if p.rdb == nil {
		return
	}

	members, err := p.rdb.SMembers(ctx, p.onlineSetKey).Result()
	if err != nil {
		return
	}

	for _, raw := range members {
		id64, parseErr := strconv.ParseUint(raw, 10, 32)
		if parseErr != nil {
			continue
		}
		userID := uint(id64)
		exists, existsErr := p.rdb.Exists(ctx, p.lastSeenKey(userID)).Result()
		if existsErr != nil || exists > 0 {
			continue
		}
		_ = p.rdb.SRem(ctx, p.onlineSetKey, raw).Err()

		p.mu.Lock()
		if p.localCounts[userID] == 0 {
			p.offline[userID] = true
		}
		p.mu.Unlock()
	}
}

func (p *Presence) reaperLoop() {
	ticker := time.NewTicker(p.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapOnce(context.Background())
		}
	}
}

func (p *Presence) finalizeOffline(ctx context.Context, userID uint) {
	p.mu.Lock()
	delete(p.offlineTimers, userID)
	if p.localCounts[userID] > 0 {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if p.rdb != nil {
		exists, err := p.rdb.Exists(ctx, p.lastSeenKey(userID)).Result()
		if err == nil && exists > 0 {
			// Another process may still hold a session; the reaper settles it.
			return
		}
		_ = p.rdb.SRem(ctx, p.onlineSetKey, strconv.FormatUint(uint64(userID), 10)).Err()
	}

	p.mu.Lock()
	p.offline[userID] = true
	p.mu.Unlock()
}

func (p *Presence) lastSeenKey(userID uint) string {
	return p.lastSeenKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}
