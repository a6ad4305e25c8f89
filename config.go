package authgate

import (
	"errors"
	"time"
)

// Config defines every tunable of the engine. Instances are configured
// during initialization and treated as immutable afterwards.
type Config struct {
	Session           SessionConfig
	Password          PasswordConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	TOTP              TOTPConfig
	Login             LoginConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	Security          SecurityConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix string
	// TTL is the lifetime granted to a session at creation and at renewal.
	TTL time.Duration
	// RenewalWindow is how close to expiry a validated session must be
	// before its lifetime is extended back to a full TTL.
	RenewalWindow time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
EMAIL VERIFICATION CONFIG
====================================
*/

type EmailVerificationConfig struct {
	RedisPrefix  string
	CodeTTL      time.Duration
	SendLimit    int
	SendWindow   time.Duration
	VerifyLimit  int
	VerifyWindow time.Duration
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

type PasswordResetConfig struct {
	RedisPrefix  string
	SessionTTL   time.Duration
	SendLimit    int
	SendWindow   time.Duration
	VerifyLimit  int
	VerifyWindow time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer         string
	Digits         int
	Period         int
	Skew           int
	VerifyLimit    int
	VerifyWindow   time.Duration
	RecoveryLimit  int
	RecoveryWindow time.Duration
}

/*
====================================
LOGIN CONFIG
====================================
*/

type LoginConfig struct {
	// ThrottleTimeouts is the escalating per-user backoff ladder applied
	// to login attempts. The last entry repeats once the ladder is
	// exhausted.
	ThrottleTimeouts []time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	// ProductionMode tightens hardening checks and makes issued cookies
	// Secure.
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration a fresh [Builder] starts from.
// Callers tweak individual fields and pass the result to
// [Builder.WithConfig].
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:   "sess",
			TTL:           30 * 24 * time.Hour,
			RenewalWindow: 15 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         19456,
			Time:           2,
			Parallelism:    1,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		EmailVerification: EmailVerificationConfig{
			RedisPrefix:  "evr",
			CodeTTL:      10 * time.Minute,
			SendLimit:    3,
			SendWindow:   2 * time.Minute,
			VerifyLimit:  5,
			VerifyWindow: 30 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			RedisPrefix:  "pwr",
			SessionTTL:   10 * time.Minute,
			SendLimit:    3,
			SendWindow:   2 * time.Minute,
			VerifyLimit:  5,
			VerifyWindow: 30 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:         "",
			Digits:         6,
			Period:         30,
			Skew:           1,
			VerifyLimit:    5,
			VerifyWindow:   30 * time.Minute,
			RecoveryLimit:  3,
			RecoveryWindow: time.Hour,
		},
		Login: LoginConfig{
			ThrottleTimeouts: []time.Duration{
				0,
				1 * time.Second,
				2 * time.Second,
				4 * time.Second,
				8 * time.Second,
				16 * time.Second,
				30 * time.Second,
				60 * time.Second,
				180 * time.Second,
				300 * time.Second,
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Security: SecurityConfig{
			ProductionMode: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations that weaken the engine's guarantees.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.RenewalWindow <= 0 {
		return errors.New("Session RenewalWindow must be > 0")
	}
	if c.Session.RenewalWindow > c.Session.TTL {
		return errors.New("Session RenewalWindow must be <= TTL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Email verification
	if c.EmailVerification.CodeTTL <= 0 {
		return errors.New("EmailVerification CodeTTL must be > 0")
	}
	if c.EmailVerification.SendLimit <= 0 || c.EmailVerification.SendWindow <= 0 {
		return errors.New("EmailVerification send limiter must be configured")
	}
	if c.EmailVerification.VerifyLimit <= 0 || c.EmailVerification.VerifyWindow <= 0 {
		return errors.New("EmailVerification verify limiter must be configured")
	}

	// Password reset
	if c.PasswordReset.SessionTTL <= 0 {
		return errors.New("PasswordReset SessionTTL must be > 0")
	}
	if c.PasswordReset.SendLimit <= 0 || c.PasswordReset.SendWindow <= 0 {
		return errors.New("PasswordReset send limiter must be configured")
	}
	if c.PasswordReset.VerifyLimit <= 0 || c.PasswordReset.VerifyWindow <= 0 {
		return errors.New("PasswordReset verify limiter must be configured")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	if c.TOTP.VerifyLimit <= 0 || c.TOTP.VerifyWindow <= 0 {
		return errors.New("TOTP verify limiter must be configured")
	}
	if c.TOTP.RecoveryLimit <= 0 || c.TOTP.RecoveryWindow <= 0 {
		return errors.New("TOTP recovery limiter must be configured")
	}

	// Login
	if len(c.Login.ThrottleTimeouts) == 0 {
		return errors.New("Login ThrottleTimeouts must not be empty")
	}
	for _, timeout := range c.Login.ThrottleTimeouts {
		if timeout < 0 {
			return errors.New("Login ThrottleTimeouts must be >= 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Security.ProductionMode {
		if c.Password.Memory < 19456 {
			return errors.New("ProductionMode requires Password Memory >= 19456 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.TOTP.Skew > 2 {
			return errors.New("ProductionMode requires TOTP Skew <= 2")
		}
		if c.Session.TTL > 365*24*time.Hour {
			return errors.New("ProductionMode requires Session TTL <= 365d")
		}
	}

	return nil
}
