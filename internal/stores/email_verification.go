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

const verificationRecordVersionV1 = 1

var (
	// ErrVerificationNotFound is returned when no live verification request
	// exists for the user.
	ErrVerificationNotFound = errors.New("verification request not found")
	// ErrVerificationRedisUnavailable wraps transport-level Redis failures.
	ErrVerificationRedisUnavailable = errors.New("verification redis unavailable")
)

// EmailVerificationRecord is one pending email verification request.
// RequestID is the opaque identifier handed to the client in a cookie;
// Code is the human-enterable one-time code sent to the address.
type EmailVerificationRecord struct {
	RequestID string
	Email     string
	Code      string
	ExpiresAt int64
}

// EmailVerificationStore persists at most one live verification request per
// user: records are keyed by user ID, so saving a new request supersedes any
// prior one.
type EmailVerificationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewEmailVerificationStore(redisClient redis.UniversalClient, prefix string) *EmailVerificationStore {
	if prefix == "" {
		prefix = "evr"
	}
	return &EmailVerificationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *EmailVerificationStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Save stores the user's verification request, replacing any existing one.
func (s *EmailVerificationStore) Save(ctx context.Context, userID string, record *EmailVerificationRecord, ttl time.Duration) error {
	encoded, err := encodeEmailVerificationRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(userID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}

	return nil
}

// Get returns the user's live verification request, or
// [ErrVerificationNotFound] when none exists.
func (s *EmailVerificationStore) Get(ctx context.Context, userID string) (*EmailVerificationRecord, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrVerificationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}

	record, err := decodeEmailVerificationRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}
	return record, nil
}

// Delete removes the user's verification request. Absent records are a no-op.
func (s *EmailVerificationStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationRedisUnavailable, err)
	}
	return nil
}

func encodeEmailVerificationRecord(record *EmailVerificationRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(verificationRecordVersionV1)

	for _, field := range []string{record.RequestID, record.Email, record.Code} {
		if len(field) > 255 {
			return nil, errors.New("verification record field too long")
		}
		buf.WriteByte(byte(len(field)))
		buf.WriteString(field)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeEmailVerificationRecord(data []byte) (*EmailVerificationRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != verificationRecordVersionV1 {
		return nil, errors.New("invalid verification record version")
	}

	record := &EmailVerificationRecord{}
	for _, field := range []*string{&record.RequestID, &record.Email, &record.Code} {
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

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	return record, nil
}
