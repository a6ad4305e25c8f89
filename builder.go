package authgate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/atrium-labs/authgate/crypt"
	"github.com/atrium-labs/authgate/internal/stores"
	"github.com/atrium-labs/authgate/password"
	"github.com/atrium-labs/authgate/ratelimit"
	"github.com/atrium-labs/authgate/session"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider  UserProvider
	codeSender    CodeSender
	auditSink     AuditSink
	encryptionKey []byte

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithCodeSender sets the one-time-code delivery hook. When unset, codes
// are logged through slog.
func (b *Builder) WithCodeSender(sender CodeSender) *Builder {
	b.codeSender = sender
	return b
}

// WithAuditSink sets the audit destination. Supplying a sink enables
// audit dispatch.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithEncryptionKey sets the 32-byte AES-256-GCM key guarding recovery
// codes and TOTP secrets at rest.
func (b *Builder) WithEncryptionKey(key []byte) *Builder {
	b.encryptionKey = key
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if len(b.encryptionKey) == 0 {
		return nil, errors.New("encryption key required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	encryptor, err := crypt.NewEncryptor(b.encryptionKey)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// Hashed once at startup; verified against on unknown-user logins so
	// the failure path costs the same as a real credential check.
	dummyHash, err := hasher.Hash("authgate-dummy-credential")
	if err != nil {
		return nil, err
	}

	sender := b.codeSender
	if sender == nil {
		sender = slogCodeSender{}
	}

	engine := &Engine{
		config: cfg,

		sessionStore: session.NewStore(
			b.redis,
			cfg.Session.RedisPrefix,
			cfg.Session.TTL,
			cfg.Session.RenewalWindow,
		),
		verificationStore: stores.NewEmailVerificationStore(b.redis, cfg.EmailVerification.RedisPrefix),
		resetStore:        stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix),

		passwordHash: hasher,
		encryptor:    encryptor,
		totp:         newTOTPManager(cfg.TOTP),

		userProvider: b.userProvider,
		codeSender:   sender,

		audit:   newAuditDispatcher(auditConfig(cfg.Audit, b.auditSink), b.auditSink),
		metrics: NewMetrics(cfg.Metrics),

		loginThrottler:    ratelimit.NewThrottler(cfg.Login.ThrottleTimeouts),
		verificationSend:  ratelimit.NewExpiringTokenBucket(cfg.EmailVerification.SendLimit, cfg.EmailVerification.SendWindow),
		verificationCheck: ratelimit.NewExpiringTokenBucket(cfg.EmailVerification.VerifyLimit, cfg.EmailVerification.VerifyWindow),
		resetSend:         ratelimit.NewExpiringTokenBucket(cfg.PasswordReset.SendLimit, cfg.PasswordReset.SendWindow),
		resetCheck:        ratelimit.NewExpiringTokenBucket(cfg.PasswordReset.VerifyLimit, cfg.PasswordReset.VerifyWindow),
		totpCheck:         ratelimit.NewExpiringTokenBucket(cfg.TOTP.VerifyLimit, cfg.TOTP.VerifyWindow),
		recoveryCheck:     ratelimit.NewExpiringTokenBucket(cfg.TOTP.RecoveryLimit, cfg.TOTP.RecoveryWindow),

		dummyHash: dummyHash,
	}

	b.built = true

	return engine, nil
}

// auditConfig turns audit on when a sink was supplied, so callers do not
// have to flip the config flag separately.
func auditConfig(cfg AuditConfig, sink AuditSink) AuditConfig {
	if sink != nil {
		cfg.Enabled = true
	}
	return cfg
}
