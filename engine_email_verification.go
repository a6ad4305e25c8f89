package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/atrium-labs/authgate/internal"
	"github.com/atrium-labs/authgate/internal/stores"
)

// RequestEmailVerification issues a one-time code for the given address
// and delivers it through the configured [CodeSender]. A user has at most
// one live request; issuing a new one supersedes the old. The returned
// request carries the RequestID for the email_verification cookie.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID, email string) (*EmailVerificationRequest, error) {
	if e == nil || e.verificationStore == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	if !e.verificationSend.Consume(userID, 1) {
		e.metricInc(MetricVerificationRateLimited)
		e.emitRateLimit(ctx, "email_verification_send", userID)
		return nil, ErrSendRateLimited
	}

	record, err := e.issueVerificationRequest(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricVerificationRequested)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, userID, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return toVerificationRequest(record), nil
}

// toVerificationRequest strips the code off a stored record; the code
// never leaves the engine except through the [CodeSender].
func toVerificationRequest(record *stores.EmailVerificationRecord) *EmailVerificationRequest {
	return &EmailVerificationRequest{
		RequestID: record.RequestID,
		Email:     record.Email,
		ExpiresAt: record.ExpiresAt,
	}
}

// VerifyEmailCode checks the user's live verification request against a
// submitted code. An expired or missing request is replaced with a fresh
// one and reported as [ErrCodeExpired]; a wrong code is
// [ErrIncorrectCode]. On success the user's email is updated to the
// verified address, all pending password-reset sessions are invalidated,
// and the attempt counter resets.
func (e *Engine) VerifyEmailCode(ctx context.Context, userID, code string) error {
	if e == nil || e.verificationStore == nil {
		return ErrEngineNotReady
	}

	if !e.verificationCheck.Consume(userID, 1) {
		e.metricInc(MetricVerificationRateLimited)
		e.emitRateLimit(ctx, "email_verification_verify", userID)
		return ErrVerifyRateLimited
	}

	record, err := e.verificationStore.Get(ctx, userID)
	if err != nil && !errors.Is(err, stores.ErrVerificationNotFound) {
		return e.wrapBackend(err)
	}

	if record == nil || time.Now().Unix() >= record.ExpiresAt {
		email := ""
		if record != nil {
			email = record.Email
		} else {
			user, lookupErr := e.userProvider.GetUserByID(ctx, userID)
			if lookupErr != nil {
				return e.wrapBackend(lookupErr)
			}
			email = user.Email
		}
		if _, issueErr := e.issueVerificationRequest(ctx, userID, email); issueErr != nil {
			return issueErr
		}
		e.metricInc(MetricVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, userID, "", ErrCodeExpired, nil)
		return ErrCodeExpired
	}

	if record.Code != code {
		e.metricInc(MetricVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, userID, "", ErrIncorrectCode, nil)
		return ErrIncorrectCode
	}

	if err := e.verificationStore.Delete(ctx, userID); err != nil {
		return e.wrapBackend(err)
	}
	if err := e.userProvider.UpdateEmailAndSetVerified(ctx, userID, record.Email); err != nil {
		return e.wrapBackend(err)
	}
	// A pending reset was created under the old trust state.
	if err := e.resetStore.DeleteAllForUser(ctx, userID); err != nil {
		return e.wrapBackend(err)
	}
	e.verificationCheck.Reset(userID)

	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, userID, "", nil, func() map[string]string {
		return map[string]string{"email": record.Email}
	})
	return nil
}

// issueVerificationRequest writes a fresh code for (userID, email) and
// hands it to the code sender.
func (e *Engine) issueVerificationRequest(ctx context.Context, userID, email string) (*stores.EmailVerificationRecord, error) {
	requestID, err := internal.GenerateRequestID()
	if err != nil {
		return nil, err
	}
	code, err := internal.GenerateOTP()
	if err != nil {
		return nil, err
	}

	record := &stores.EmailVerificationRecord{
		RequestID: requestID,
		Email:     email,
		Code:      code,
		ExpiresAt: time.Now().Add(e.config.EmailVerification.CodeTTL).Unix(),
	}
	if err := e.verificationStore.Save(ctx, userID, record, e.config.EmailVerification.CodeTTL); err != nil {
		return nil, e.wrapBackend(err)
	}

	if err := e.codeSender.SendVerificationCode(ctx, email, code); err != nil {
		return nil, err
	}
	return record, nil
}
