package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Store is a Redis-backed session store that handles persistence, expiration,
// and sliding-window renewal. A per-user index set supports invalidating and
// updating every session of a user.
type Store struct {
	redis         redis.UniversalClient
	prefix        string
	ttl           time.Duration
	renewalWindow time.Duration

	now func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the key namespace; ttl is the session lifetime granted at
// creation and on renewal; renewalWindow is how close to expiry a session
// must be before Validate extends it.
func NewStore(redisClient redis.UniversalClient, prefix string, ttl, renewalWindow time.Duration) *Store {
	if prefix == "" {
		prefix = "sess"
	}
	return &Store{
		redis:         redisClient,
		prefix:        prefix,
		ttl:           ttl,
		renewalWindow: renewalWindow,
		now:           time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Create persists a new session for the given bearer token. The stored ID is
// the token hash; expiry is now + ttl.
func (s *Store) Create(ctx context.Context, token, userID string, flags Flags) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:                HashToken(token),
		UserID:            userID,
		TwoFactorVerified: flags.TwoFactorVerified,
		CreatedAt:         now.Unix(),
		ExpiresAt:         now.Add(s.ttl).Unix(),
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Validate resolves a bearer token to its session. An absent or expired
// record yields [ErrNotFound] (expired records are deleted on detection).
// A session inside the renewal window is extended to now + ttl and
// persisted; concurrent validations of the same token race benignly,
// last renewal wins.
func (s *Store) Validate(ctx context.Context, token string) (*Session, error) {
	return s.ValidateID(ctx, HashToken(token))
}

// ValidateID is [Store.Validate] for callers that already hold the hashed
// session ID.
func (s *Store) ValidateID(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if now.Unix() >= sess.ExpiresAt {
		if err := s.deleteWithIndex(ctx, sess.UserID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	if time.Unix(sess.ExpiresAt, 0).Sub(now) <= s.renewalWindow {
		sess.ExpiresAt = now.Add(s.ttl).Unix()
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		sess.Renewed = true
	}

	return sess, nil
}

func (s *Store) get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID
	return sess, nil
}

// Delete removes a session by ID. Deleting an absent session is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.deleteWithIndex(ctx, sess.UserID, sessionID)
}

// DeleteByToken removes the session belonging to a bearer token.
func (s *Store) DeleteByToken(ctx context.Context, token string) error {
	return s.Delete(ctx, HashToken(token))
}

func (s *Store) deleteWithIndex(ctx context.Context, userID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every tracked session of a user.
//
// The read of the index set and the deletes are not one atomic unit: a
// session created between the two phases survives this call. The race is
// narrow and only affects logout-all semantics; the stray session expires
// naturally or is caught by the next invocation.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sessionID := range sessionIDs {
			pipe.Del(ctx, s.key(sessionID))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// AllForUser returns every live session of a user. Index entries whose
// record has already expired are pruned as they are encountered.
func (s *Store) AllForUser(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sess, err := s.get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				if err := s.redis.SRem(ctx, userKey, sessionID).Err(); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// Ping checks the backing Redis and reports the round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := s.now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.now().Sub(start), nil
}

// SetTwoFactorVerified flips the session's two-factor flag to true. The flag
// is one-way; it is never unset except by [Store.ClearTwoFactorForUser] or
// by creating a new session. Absent sessions are a no-op.
func (s *Store) SetTwoFactorVerified(ctx context.Context, sessionID string) error {
	sess, err := s.get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if sess.TwoFactorVerified {
		return nil
	}

	sess.TwoFactorVerified = true
	return s.rewriteKeepTTL(ctx, sess)
}

// ClearTwoFactorForUser marks every live session of a user as not
// two-factor verified. Called when the second factor is reset through a
// recovery code, so stale sessions must re-verify.
func (s *Store) ClearTwoFactorForUser(ctx context.Context, userID string) error {
	sessionIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	for _, sessionID := range sessionIDs {
		sess, err := s.get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		if !sess.TwoFactorVerified {
			continue
		}
		sess.TwoFactorVerified = false
		if err := s.rewriteKeepTTL(ctx, sess); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) rewriteKeepTTL(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.ID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
