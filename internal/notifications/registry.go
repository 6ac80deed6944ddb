// Package notifications delivers notifications to live sessions and push devices.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"marketplace/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	// Max sessions per user
	maxSessionsPerUser = 12
	// Max total sessions
	maxTotalSessions = 10000

	registryName = "notifications"
)

var (
	ErrSessionExists     = errors.New("session id already registered")
	ErrUserSessionLimit  = errors.New("user connection limit reached")
	ErrServerAtCapacity  = errors.New("server connection limit reached")
	ErrInvalidSessionKey = errors.New("session id is required")
)

// Session is a live connection that can receive messages.
type Session interface {
	TrySend(message []byte) bool
	Close() error
}

// TokenDecoder resolves an identity token to a user id.
type TokenDecoder func(token string) (uint, error)

type session struct {
	userID uint
	sink   Session
}

// SessionRegistry maps opaque connection ids to users. One user may hold many sessions.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]session
	byUser   map[uint]map[string]Session
	decode   TokenDecoder
	presence *Presence
}

// NewSessionRegistry creates a registry. Presence is mirrored in Redis when rdb is set.
func NewSessionRegistry(decode TokenDecoder, rdb *redis.Client) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]session),
		byUser:   make(map[uint]map[string]Session),
		decode:   decode,
		presence: NewPresence(rdb, PresenceConfig{}),
	}
}

// OnSessionStart decodes the identity token and registers the session under connID.
func (r *SessionRegistry) OnSessionStart(connID, token string, sink Session) (uint, error) {
	if connID == "" {
		return 0, ErrInvalidSessionKey
	}
	userID, err := r.decode(token)
	if err != nil {
		return 0, fmt.Errorf("decode session token: %w", err)
	}

	r.mu.Lock()
	if _, exists := r.sessions[connID]; exists {
		r.mu.Unlock()
		return 0, ErrSessionExists
	}
	if len(r.sessions) >= maxTotalSessions {
		r.mu.Unlock()
		return 0, ErrServerAtCapacity
	}
	m, ok := r.byUser[userID]
	if !ok {
		m = make(map[string]Session)
		r.byUser[userID] = m
	}
	if len(m) >= maxSessionsPerUser {
		r.mu.Unlock()
		return 0, ErrUserSessionLimit
	}
	m[connID] = sink
	r.sessions[connID] = session{userID: userID, sink: sink}
	r.mu.Unlock()

	observability.LiveSessions.Inc()
	r.presence.Register(context.Background(), userID)
	return userID, nil
}

// OnSessionEnd forgets connID. Unknown ids are ignored.
func (r *SessionRegistry) OnSessionEnd(connID string) {
	r.mu.Lock()
	s, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
		if m, found := r.byUser[s.userID]; found {
			delete(m, connID)
			if len(m) == 0 {
				delete(r.byUser, s.userID)
			}
		}
	}
	r.mu.Unlock()

	if ok {
		observability.LiveSessions.Dec()
		r.presence.Unregister(context.Background(), s.userID)
	}
}

func (r *SessionRegistry) touch(connID string) {
	r.mu.RLock()
	s, ok := r.sessions[connID]
	r.mu.RUnlock()
	if ok {
		r.presence.Touch(context.Background(), s.userID)
	}
}

// Sessions returns a snapshot of the user's live sessions.
func (r *SessionRegistry) Sessions(userID uint) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	out := make([]Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// UserOf returns the user owning connID.
func (r *SessionRegistry) UserOf(connID string) (uint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s.userID, ok
}

// HasLocalSession reports whether this process holds a session for the user.
func (r *SessionRegistry) HasLocalSession(userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// IsOnline reports whether the user has a live session in any process.
func (r *SessionRegistry) IsOnline(userID uint) bool {
	return r.HasLocalSession(userID) || r.presence.IsOnline(context.Background(), userID)
}

// Broadcast sends message to every live session of the user and returns how many accepted it.
func (r *SessionRegistry) Broadcast(userID uint, message []byte) int {
	sent := 0
	for _, s := range r.Sessions(userID) {
		if s.TrySend(message) {
			sent++
		}
	}
	return sent
}

// Len returns the number of live sessions held by this process.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartWiring forwards bridge messages on user channels to the matching sessions.
func (r *SessionRegistry) StartWiring(ctx context.Context, b Bridge) error {
	return b.Subscribe(ctx, func(channel, payload string) {
		if !strings.HasPrefix(channel, userChannelPrefix) {
			observability.GlobalLogger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		var userID uint
		if _, err := fmt.Sscanf(channel, userChannelPrefix+"%d", &userID); err != nil {
			observability.GlobalLogger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		r.Broadcast(userID, []byte(payload))
	})
}

// Shutdown closes every live session.
func (r *SessionRegistry) Shutdown(_ context.Context) error {
	r.presence.Stop()

	r.mu.Lock()
	sinks := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sinks = append(sinks, s.sink)
	}
	observability.LiveSessions.Sub(float64(len(r.sessions)))
	r.sessions = make(map[string]session)
	r.byUser = make(map[uint]map[string]Session)
	r.mu.Unlock()

	for _, s := range sinks {
		if err := s.Close(); err != nil {
			observability.GlobalLogger.Warn("failed to close session", observability.ErrAttr(err))
		}
	}
	return nil
}
