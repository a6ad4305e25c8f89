package authgate

import (
	"github.com/atrium-labs/authgate/crypt"
	"github.com/atrium-labs/authgate/internal/stores"
	"github.com/atrium-labs/authgate/password"
	"github.com/atrium-labs/authgate/ratelimit"
	"github.com/atrium-labs/authgate/session"
)

// Engine is the facade over session, credential, verification, reset,
// and second-factor lifecycles. Construct one through [New]; instances
// are immutable after Build and safe for concurrent use.
type Engine struct {
	config Config

	sessionStore      *session.Store
	verificationStore *stores.EmailVerificationStore
	resetStore        *stores.PasswordResetStore

	passwordHash *password.Argon2
	encryptor    *crypt.Encryptor
	totp         *totpManager

	userProvider UserProvider
	codeSender   CodeSender

	audit   *auditDispatcher
	metrics *Metrics

	loginThrottler    *ratelimit.Throttler
	verificationSend  *ratelimit.ExpiringTokenBucket
	verificationCheck *ratelimit.ExpiringTokenBucket
	resetSend         *ratelimit.ExpiringTokenBucket
	resetCheck        *ratelimit.ExpiringTokenBucket
	totpCheck         *ratelimit.ExpiringTokenBucket
	recoveryCheck     *ratelimit.ExpiringTokenBucket

	// dummyHash burns an argon2 verification for unknown users so login
	// timing does not reveal whether an account exists.
	dummyHash string
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
