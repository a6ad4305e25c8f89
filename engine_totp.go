package authgate

import (
	"context"
	"crypto/subtle"
	"encoding/base32"
	"time"

	"github.com/atrium-labs/authgate/internal"
)

// SetupTOTP generates a fresh TOTP secret and provisioning URI for the
// user. Nothing is persisted until [Engine.ConfirmTOTPSetup] sees a valid
// code for the secret.
func (e *Engine) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	if e == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return nil, e.wrapBackend(err)
	}

	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	return &TOTPSetup{
		SecretBase32: secretBase32,
		URI:          e.totp.ProvisionURI(secretBase32, user.Email),
	}, nil
}

// ConfirmTOTPSetup enrolls the secret once the user proves possession of
// it with a valid code. The secret is stored encrypted and the session's
// second factor is marked verified.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, userID, sessionID, secretBase32, code string) error {
	if e == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretBase32)
	if err != nil || len(secret) != totpSecretBytes {
		return ErrIncorrectCode
	}

	if !e.totpCheck.Consume(userID, 1) {
		e.metricInc(MetricTOTPRateLimited)
		e.emitRateLimit(ctx, "totp_setup", userID)
		return ErrVerifyRateLimited
	}

	ok, err := e.totp.VerifyCode(secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTOTPSetup, false, userID, sessionID, ErrIncorrectCode, nil)
		return ErrIncorrectCode
	}

	encrypted, err := e.encryptor.Encrypt(secret)
	if err != nil {
		return err
	}
	if err := e.userProvider.UpdateTOTPKey(ctx, userID, encrypted); err != nil {
		return e.wrapBackend(err)
	}
	if err := e.sessionStore.SetTwoFactorVerified(ctx, sessionID); err != nil {
		return e.wrapBackend(err)
	}
	e.totpCheck.Reset(userID)

	e.metricInc(MetricTOTPSuccess)
	e.emitAudit(ctx, auditEventTOTPSetup, true, userID, sessionID, nil, nil)
	return nil
}

// VerifyTOTP checks a code against the user's enrolled secret and marks
// the session's second factor verified.
func (e *Engine) VerifyTOTP(ctx context.Context, userID, sessionID, code string) error {
	if e == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return e.wrapBackend(err)
	}
	if !user.Registered2FA() {
		return ErrTOTPNotEnrolled
	}

	if !e.totpCheck.Consume(userID, 1) {
		e.metricInc(MetricTOTPRateLimited)
		e.emitRateLimit(ctx, "totp_verify", userID)
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
		e.emitAudit(ctx, auditEventTOTPFailure, false, userID, sessionID, ErrIncorrectCode, nil)
		return ErrIncorrectCode
	}

	if err := e.sessionStore.SetTwoFactorVerified(ctx, sessionID); err != nil {
		return e.wrapBackend(err)
	}
	e.totpCheck.Reset(userID)

	e.metricInc(MetricTOTPSuccess)
	e.emitAudit(ctx, auditEventTOTPSuccess, true, userID, sessionID, nil, nil)
	return nil
}

// ResetTwoFactorWithRecoveryCode tears down the user's second factor
// using their recovery code: the TOTP secret is cleared, a replacement
// recovery code is issued, and every live session drops its two-factor
// verified flag. The new plaintext code is returned exactly once.
func (e *Engine) ResetTwoFactorWithRecoveryCode(ctx context.Context, userID, recoveryCode string) (string, error) {
	if e == nil || e.encryptor == nil {
		return "", ErrEngineNotReady
	}

	if !e.recoveryCheck.Consume(userID, 1) {
		e.metricInc(MetricRecoveryCodeFailed)
		e.emitRateLimit(ctx, "two_factor_recovery", userID)
		return "", ErrRecoveryRateLimited
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return "", e.wrapBackend(err)
	}

	stored, err := e.encryptor.DecryptToString(user.RecoveryCode)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(recoveryCode)) != 1 {
		e.metricInc(MetricRecoveryCodeFailed)
		e.emitAudit(ctx, auditEventTwoFactorReset, false, userID, "", ErrIncorrectCode, nil)
		return "", ErrIncorrectCode
	}

	newCode, err := internal.GenerateRecoveryCode()
	if err != nil {
		return "", err
	}
	encrypted, err := e.encryptor.EncryptString(newCode)
	if err != nil {
		return "", err
	}

	// Rotate the code before clearing the secret so a replayed recovery
	// code is dead the moment it is used.
	if err := e.userProvider.UpdateRecoveryCode(ctx, userID, encrypted); err != nil {
		return "", e.wrapBackend(err)
	}
	if err := e.userProvider.ClearTOTPKey(ctx, userID); err != nil {
		return "", e.wrapBackend(err)
	}
	if err := e.sessionStore.ClearTwoFactorForUser(ctx, userID); err != nil {
		return "", e.wrapBackend(err)
	}
	e.recoveryCheck.Reset(userID)

	e.metricInc(MetricRecoveryCodeUsed)
	e.emitAudit(ctx, auditEventTwoFactorReset, true, userID, "", nil, nil)
	return newCode, nil
}
