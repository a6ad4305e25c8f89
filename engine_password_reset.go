package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/atrium-labs/authgate/internal"
	"github.com/atrium-labs/authgate/internal/stores"
	"github.com/atrium-labs/authgate/session"
)

// CreatePasswordResetSession opens a reset session for the account behind
// email and sends its one-time code. The returned token is the raw bearer
// the caller puts in the reset cookie; the stored ID is its hash.
func (e *Engine) CreatePasswordResetSession(ctx context.Context, email string) (*ResetSession, string, error) {
	if e == nil || e.resetStore == nil {
		return nil, "", ErrEngineNotReady
	}

	email = normalizeEmail(email)
	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", e.wrapBackend(err)
	}

	if !e.resetSend.Consume(user.UserID, 1) {
		e.metricInc(MetricPasswordResetRateLimited)
		e.emitRateLimit(ctx, "password_reset_send", user.UserID)
		return nil, "", ErrSendRateLimited
	}

	token, err := session.GenerateToken()
	if err != nil {
		return nil, "", err
	}
	resetID := session.HashToken(token)

	code, err := internal.GenerateOTP()
	if err != nil {
		return nil, "", err
	}

	ttl := e.config.PasswordReset.SessionTTL
	record := &stores.PasswordResetRecord{
		UserID:    user.UserID,
		Email:     user.Email,
		Code:      code,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	if err := e.resetStore.Save(ctx, resetID, record, ttl); err != nil {
		return nil, "", e.wrapBackend(err)
	}

	if err := e.codeSender.SendPasswordResetCode(ctx, user.Email, code); err != nil {
		return nil, "", err
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{"email": user.Email}
	})

	return resetSessionFromRecord(resetID, record), token, nil
}

// ValidatePasswordResetToken resolves a raw reset token. Absent, expired,
// or orphaned sessions resolve to (nil, nil, nil); only backend failures
// error.
func (e *Engine) ValidatePasswordResetToken(ctx context.Context, token string) (*ResetSession, *UserRecord, error) {
	if e == nil || e.resetStore == nil {
		return nil, nil, ErrEngineNotReady
	}

	resetID := session.HashToken(token)
	record, err := e.resetStore.Get(ctx, resetID)
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) {
			return nil, nil, nil
		}
		return nil, nil, e.wrapBackend(err)
	}

	if time.Now().Unix() >= record.ExpiresAt {
		if err := e.resetStore.Delete(ctx, resetID); err != nil {
			return nil, nil, e.wrapBackend(err)
		}
		return nil, nil, nil
	}

	user, err := e.userProvider.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if err := e.resetStore.Delete(ctx, resetID); err != nil {
				return nil, nil, e.wrapBackend(err)
			}
			return nil, nil, nil
		}
		return nil, nil, e.wrapBackend(err)
	}

	return resetSessionFromRecord(resetID, record), user, nil
}

// VerifyResetEmailCode checks the reset session's one-time code. Success
// marks the session's email factor verified and, when the address still
// matches the account, marks the account email verified too.
func (e *Engine) VerifyResetEmailCode(ctx context.Context, resetID, code string) error {
	if e == nil || e.resetStore == nil {
		return ErrEngineNotReady
	}

	record, err := e.resetStore.Get(ctx, resetID)
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) {
			return ErrSessionNotFound
		}
		return e.wrapBackend(err)
	}

	if !e.resetCheck.Consume(record.UserID, 1) {
		e.metricInc(MetricPasswordResetRateLimited)
		e.emitRateLimit(ctx, "password_reset_verify", record.UserID)
		return ErrVerifyRateLimited
	}

	if record.Code != code {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetEmailConfirm, false, record.UserID, "", ErrIncorrectCode, nil)
		return ErrIncorrectCode
	}

	if err := e.resetStore.SetEmailVerified(ctx, resetID); err != nil {
		return e.wrapBackend(err)
	}

	user, err := e.userProvider.GetUserByID(ctx, record.UserID)
	if err == nil && user.Email == record.Email {
		if err := e.userProvider.UpdateEmailAndSetVerified(ctx, record.UserID, record.Email); err != nil {
			return e.wrapBackend(err)
		}
	}
	e.resetCheck.Reset(record.UserID)

	e.emitAudit(ctx, auditEventPasswordResetEmailConfirm, true, record.UserID, "", nil, nil)
	return nil
}

// VerifyResetTOTP checks a TOTP code inside a reset session and marks the
// second factor verified.
func (e *Engine) VerifyResetTOTP(ctx context.Context, resetID, code string) error {
	if e == nil || e.resetStore == nil {
		return ErrEngineNotReady
	}

	record, err := e.resetStore.Get(ctx, resetID)
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) {
			return ErrSessionNotFound
		}
		return e.wrapBackend(err)
	}

	user, err := e.userProvider.GetUserByID(ctx, record.UserID)
	if err != nil {
		return e.wrapBackend(err)
	}
	if !user.Registered2FA() {
		return ErrTOTPNotEnrolled
	}

	if !e.totpCheck.Consume(user.UserID, 1) {
		e.metricInc(MetricTOTPRateLimited)
		e.emitRateLimit(ctx, "password_reset_totp", user.UserID)
		return ErrVerifyRateLimited
	}

	secret, err := e.encryptor.Decrypt(user.TOTPKey)
	if err != nil {
		return err
	}

	ok, err := e.totp.VerifyCode(secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventPasswordReset2FAConfirm, false, user.UserID, "", ErrIncorrectCode, nil)
		return ErrIncorrectCode
	}

	if err := e.resetStore.SetTwoFactorVerified(ctx, resetID); err != nil {
		return e.wrapBackend(err)
	}
	e.totpCheck.Reset(user.UserID)

	e.metricInc(MetricTOTPSuccess)
	e.emitAudit(ctx, auditEventPasswordReset2FAConfirm, true, user.UserID, "", nil, nil)
	return nil
}

// CompletePasswordReset sets a new password once the session's required
// factors are verified, revokes every other session and reset session of
// the user, and issues a fresh login session.
func (e *Engine) CompletePasswordReset(ctx context.Context, resetID, newPassword string) (*LoginResult, error) {
	if e == nil || e.resetStore == nil {
		return nil, ErrEngineNotReady
	}
	if newPassword == "" {
		return nil, ErrInvalidCredentials
	}

	record, err := e.resetStore.Get(ctx, resetID)
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, e.wrapBackend(err)
	}

	if time.Now().Unix() >= record.ExpiresAt {
		if err := e.resetStore.Delete(ctx, resetID); err != nil {
			return nil, e.wrapBackend(err)
		}
		return nil, ErrSessionNotFound
	}

	user, err := e.userProvider.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, e.wrapBackend(err)
	}

	if !record.EmailVerified {
		e.emitAudit(ctx, auditEventPasswordResetComplete, false, user.UserID, "", ErrResetNotAllowed, nil)
		return nil, ErrResetNotAllowed
	}
	if user.Registered2FA() && !record.TwoFactorVerified {
		e.emitAudit(ctx, auditEventPasswordResetComplete, false, user.UserID, "", ErrResetNotAllowed, nil)
		return nil, ErrResetNotAllowed
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return nil, errors.Join(ErrHashingFailed, err)
	}

	// Revoke everything before the credential flips so a racing login
	// cannot keep a session alive under the old password.
	if err := e.resetStore.DeleteAllForUser(ctx, user.UserID); err != nil {
		return nil, e.wrapBackend(err)
	}
	if err := e.sessionStore.DeleteAllForUser(ctx, user.UserID); err != nil {
		return nil, e.wrapBackend(err)
	}
	if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		return nil, e.wrapBackend(err)
	}

	sess, token, err := e.CreateSession(ctx, user.UserID, session.Flags{
		TwoFactorVerified: record.TwoFactorVerified,
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricPasswordResetCompleted)
	e.emitAudit(ctx, auditEventPasswordResetComplete, true, user.UserID, sess.ID, nil, nil)

	return &LoginResult{
		User:    user,
		Session: sess,
		Token:   token,
	}, nil
}

func resetSessionFromRecord(resetID string, record *stores.PasswordResetRecord) *ResetSession {
	return &ResetSession{
		ID:                resetID,
		UserID:            record.UserID,
		Email:             record.Email,
		EmailVerified:     record.EmailVerified,
		TwoFactorVerified: record.TwoFactorVerified,
		ExpiresAt:         record.ExpiresAt,
	}
}
