package authgate

import (
	"context"
	"time"

	"github.com/atrium-labs/authgate/session"
)

// SessionInfo is the introspection view of a session. It carries no token
// material; the ID is already a hash.
type SessionInfo struct {
	SessionID         string
	TwoFactorVerified bool
	CreatedAt         int64
	ExpiresAt         int64
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// ListUserSessions returns every live session of a user, pruning stale
// index entries along the way.
func (e *Engine) ListUserSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrUserNotFound
	}

	sessions, err := e.sessionStore.AllForUser(ctx, userID)
	if err != nil {
		return nil, e.wrapBackend(err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionInfo(sess))
	}
	return out, nil
}

// ActiveSessionCount reports how many live sessions a user holds.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	infos, err := e.ListUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(infos), nil
}

// Health pings the backing Redis.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	latency, err := e.sessionStore.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}

func toSessionInfo(sess *session.Session) SessionInfo {
	return SessionInfo{
		SessionID:         sess.ID,
		TwoFactorVerified: sess.TwoFactorVerified,
		CreatedAt:         sess.CreatedAt,
		ExpiresAt:         sess.ExpiresAt,
	}
}
