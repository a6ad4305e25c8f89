package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetRecordVersionV1 = 1

const (
	resetFlagEmailVerified     = 1 << 0
	resetFlagTwoFactorVerified = 1 << 1
)

var (
	// ErrResetNotFound is returned when no reset session exists for the ID.
	ErrResetNotFound = errors.New("password reset session not found")
	// ErrResetRedisUnavailable wraps transport-level Redis failures.
	ErrResetRedisUnavailable = errors.New("password reset redis unavailable")
)

// PasswordResetRecord is one in-flight password reset session. The record is
// keyed by the hash of the reset token; both verification flags must be set
// before a reset is honored.
type PasswordResetRecord struct {
	UserID string
	Email  string
	Code   string

	EmailVerified     bool
	TwoFactorVerified bool

	ExpiresAt int64
}

// PasswordResetStore persists reset sessions keyed by the reset token hash,
// with a per-user index set for bulk invalidation.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "pwr"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordResetStore) key(resetID string) string {
	return s.prefix + ":" + resetID
}

func (s *PasswordResetStore) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save persists a reset session under resetID (the token hash).
func (s *PasswordResetStore) Save(ctx context.Context, resetID string, record *PasswordResetRecord, ttl time.Duration) error {
	encoded, err := encodePasswordResetRecord(record)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(resetID), encoded, ttl)
		pipe.SAdd(ctx, s.userKey(record.UserID), resetID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	return nil
}

// Get returns the reset session for resetID, or [ErrResetNotFound].
func (s *PasswordResetStore) Get(ctx context.Context, resetID string) (*PasswordResetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(resetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	record, err := decodePasswordResetRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return record, nil
}

// Delete removes a single reset session. Absent records are a no-op.
func (s *PasswordResetStore) Delete(ctx context.Context, resetID string) error {
	record, err := s.Get(ctx, resetID)
	if err != nil {
		if errors.Is(err, ErrResetNotFound) {
			return nil
		}
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(resetID))
		pipe.SRem(ctx, s.userKey(record.UserID), resetID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every reset session of a user. Called on
// completed resets and when an email verification elsewhere supersedes the
// trust state a pending reset was created under.
func (s *PasswordResetStore) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	resetIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, resetID := range resetIDs {
			pipe.Del(ctx, s.key(resetID))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	return nil
}

// SetEmailVerified marks the reset session's email factor as verified.
func (s *PasswordResetStore) SetEmailVerified(ctx context.Context, resetID string) error {
	return s.setFlag(ctx, resetID, func(record *PasswordResetRecord) {
		record.EmailVerified = true
	})
}

// SetTwoFactorVerified marks the reset session's second factor as verified.
func (s *PasswordResetStore) SetTwoFactorVerified(ctx context.Context, resetID string) error {
	return s.setFlag(ctx, resetID, func(record *PasswordResetRecord) {
		record.TwoFactorVerified = true
	})
}

func (s *PasswordResetStore) setFlag(ctx context.Context, resetID string, mutate func(*PasswordResetRecord)) error {
	record, err := s.Get(ctx, resetID)
	if err != nil {
		return err
	}

	mutate(record)

	encoded, err := encodePasswordResetRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(resetID), encoded, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

func encodePasswordResetRecord(record *PasswordResetRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)

	for _, field := range []string{record.UserID, record.Email, record.Code} {
		if len(field) > 255 {
			return nil, errors.New("reset record field too long")
		}
		buf.WriteByte(byte(len(field)))
		buf.WriteString(field)
	}

	var flags byte
	if record.EmailVerified {
		flags |= resetFlagEmailVerified
	}
	if record.TwoFactorVerified {
		flags |= resetFlagTwoFactorVerified
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodePasswordResetRecord(data []byte) (*PasswordResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	record := &PasswordResetRecord{}
	for _, field := range []*string{&record.UserID, &record.Email, &record.Code} {
		length, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.EmailVerified = flags&resetFlagEmailVerified != 0
	record.TwoFactorVerified = flags&resetFlagTwoFactorVerified != 0

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	return record, nil
}
