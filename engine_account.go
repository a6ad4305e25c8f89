package authgate

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/atrium-labs/authgate/internal"
	"github.com/atrium-labs/authgate/session"
)

// Register creates a new account: hashed credentials, an encrypted
// recovery code, an initial email-verification request, and a fresh
// session. The plaintext recovery code is returned exactly once.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)
	if email == "" || username == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	if _, err := e.userProvider.GetUserByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrAccountExists, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, e.wrapBackend(err)
	}

	hash, err := e.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, errors.Join(ErrHashingFailed, err)
	}

	recoveryCode, err := internal.GenerateRecoveryCode()
	if err != nil {
		return nil, err
	}
	encryptedRecovery, err := e.encryptor.EncryptString(recoveryCode)
	if err != nil {
		return nil, err
	}

	user, err := e.userProvider.CreateUser(ctx, CreateUserInput{
		UserID:       uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		RecoveryCode: encryptedRecovery,
	})
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, e.wrapBackend(err)
	}

	// New accounts start unverified; the first verification code goes out
	// immediately. Delivery failure must not roll back the account.
	var verification *EmailVerificationRequest
	if record, err := e.issueVerificationRequest(ctx, user.UserID, email); err != nil {
		log.Print("authgate: initial verification request failed")
	} else {
		verification = toVerificationRequest(record)
	}

	sess, token, err := e.CreateSession(ctx, user.UserID, session.Flags{})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.UserID, sess.ID, nil, func() map[string]string {
		return map[string]string{"email": email}
	})

	return &RegisterResult{
		User:         user,
		Session:      sess,
		Token:        token,
		RecoveryCode: recoveryCode,
		Verification: verification,
	}, nil
}

// Login verifies credentials and issues a session. Failed attempts feed a
// per-user escalating throttle; unknown emails burn a dummy hash check so
// the response time does not reveal whether the account exists.
func (e *Engine) Login(ctx context.Context, email, passwd string) (*LoginResult, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || passwd == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.passwordHash.Verify(passwd, e.dummyHash)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"email": email, "reason": "user_not_found"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, e.wrapBackend(err)
	}

	if !e.loginThrottler.Consume(user.UserID) {
		e.metricInc(MetricLoginThrottled)
		e.emitAudit(ctx, auditEventLoginThrottled, false, user.UserID, "", ErrLoginRateLimited, nil)
		e.emitRateLimit(ctx, "login", user.UserID)
		return nil, ErrLoginRateLimited
	}

	ok, err := e.passwordHash.Verify(passwd, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}

	e.loginThrottler.Reset(user.UserID)

	if e.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := e.passwordHash.Hash(passwd); err == nil {
				// Best-effort; must not block a successful login.
				if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, upgradedHash); err != nil {
					log.Print("authgate: password hash upgrade update failed")
				}
			}
		}
	}
	passwd = ""

	sess, token, err := e.CreateSession(ctx, user.UserID, session.Flags{})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, sess.ID, nil, nil)

	return &LoginResult{
		User:    user,
		Session: sess,
		Token:   token,
	}, nil
}

// Logout invalidates the session behind a raw bearer token. Unknown
// tokens are a no-op.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	sessionID := session.HashToken(token)
	if err := e.sessionStore.Delete(ctx, sessionID); err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", sessionID, err, nil)
		return e.wrapBackend(err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
