package authgate

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// memProvider is an in-memory UserProvider double.
type memProvider struct {
	mu      sync.Mutex
	byID    map[string]*UserRecord
	byEmail map[string]*UserRecord
}

func newMemProvider() *memProvider {
	return &memProvider{
		byID:    make(map[string]*UserRecord),
		byEmail: make(map[string]*UserRecord),
	}
}

func (p *memProvider) GetUserByID(_ context.Context, userID string) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	clone := *u
	return &clone, nil
}

func (p *memProvider) GetUserByEmail(_ context.Context, email string) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	clone := *u
	return &clone, nil
}

func (p *memProvider) CreateUser(_ context.Context, input CreateUserInput) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byEmail[input.Email]; ok {
		return nil, errors.New("duplicate email")
	}
	u := &UserRecord{
		UserID:       input.UserID,
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: input.PasswordHash,
		RecoveryCode: input.RecoveryCode,
	}
	p.byID[u.UserID] = u
	p.byEmail[u.Email] = u
	clone := *u
	return &clone, nil
}

func (p *memProvider) UpdatePasswordHash(_ context.Context, userID string, newHash string) error {
	return p.update(userID, func(u *UserRecord) { u.PasswordHash = newHash })
}

func (p *memProvider) UpdateEmailAndSetVerified(_ context.Context, userID string, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	delete(p.byEmail, u.Email)
	u.Email = email
	u.EmailVerified = true
	p.byEmail[email] = u
	return nil
}

func (p *memProvider) UpdateRecoveryCode(_ context.Context, userID string, encrypted []byte) error {
	return p.update(userID, func(u *UserRecord) { u.RecoveryCode = encrypted })
}

func (p *memProvider) UpdateTOTPKey(_ context.Context, userID string, encrypted []byte) error {
	return p.update(userID, func(u *UserRecord) { u.TOTPKey = encrypted })
}

func (p *memProvider) ClearTOTPKey(_ context.Context, userID string) error {
	return p.update(userID, func(u *UserRecord) { u.TOTPKey = nil })
}

func (p *memProvider) update(userID string, fn func(*UserRecord)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	return nil
}

func (p *memProvider) deleteUser(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.byID[userID]; ok {
		delete(p.byEmail, u.Email)
		delete(p.byID, userID)
	}
}

// recordingSender captures the last code sent per address.
type recordingSender struct {
	mu                sync.Mutex
	verificationCodes map[string]string
	resetCodes        map[string]string
	sendCount         int
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		verificationCodes: make(map[string]string),
		resetCodes:        make(map[string]string),
	}
}

func (s *recordingSender) SendVerificationCode(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verificationCodes[email] = code
	s.sendCount++
	return nil
}

func (s *recordingSender) SendPasswordResetCode(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCodes[email] = code
	s.sendCount++
	return nil
}

func (s *recordingSender) lastVerificationCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verificationCodes[email]
}

func (s *recordingSender) lastResetCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetCodes[email]
}

func (s *recordingSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCount
}

// testConfig keeps argon2 at the validation floor so test runs stay fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	return cfg
}

func testEncryptionKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func newTestEngine(t testing.TB) (*Engine, *memProvider, *recordingSender) {
	t.Helper()
	_, client := newTestRedis(t)

	provider := newMemProvider()
	sender := newRecordingSender()

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithUserProvider(provider).
		WithCodeSender(sender).
		WithEncryptionKey(testEncryptionKey()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, provider, sender
}

func mustRegister(t testing.TB, engine *Engine, email, username, passwd string) *RegisterResult {
	t.Helper()
	result, err := engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Username: username,
		Password: passwd,
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return result
}

// enrollTOTP provisions and confirms a TOTP secret for the user, returning
// the raw secret for generating codes in tests.
func enrollTOTP(t testing.TB, engine *Engine, userID, sessionID string) []byte {
	t.Helper()
	ctx := context.Background()

	setup, err := engine.SetupTOTP(ctx, userID)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	secret, code := totpCodeNow(t, engine, setup.SecretBase32)
	if err := engine.ConfirmTOTPSetup(ctx, userID, sessionID, setup.SecretBase32, code); err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}
	return secret
}

func totpCodeNow(t testing.TB, engine *Engine, secretBase32 string) ([]byte, string) {
	t.Helper()
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretBase32)
	if err != nil {
		t.Fatalf("decoding secret: %v", err)
	}
	counter := time.Now().Unix() / int64(engine.config.TOTP.Period)
	code, err := hotpCode(secret, counter, engine.config.TOTP.Digits)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return secret, code
}
