package authgate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess              = "login_success"
	auditEventLoginFailure              = "login_failure"
	auditEventLoginThrottled            = "login_throttled"
	auditEventRegisterSuccess           = "register_success"
	auditEventRegisterFailure           = "register_failure"
	auditEventLogoutSession             = "logout_session"
	auditEventLogoutAll                 = "logout_all"
	auditEventSessionRenewed            = "session_renewed"
	auditEventEmailVerificationRequest  = "email_verification_request"
	auditEventEmailVerificationConfirm  = "email_verification_confirm"
	auditEventPasswordResetRequest      = "password_reset_request"
	auditEventPasswordResetEmailConfirm = "password_reset_email_confirm"
	auditEventPasswordReset2FAConfirm   = "password_reset_2fa_confirm"
	auditEventPasswordResetComplete     = "password_reset_complete"
	auditEventTOTPSetup                 = "totp_setup"
	auditEventTOTPSuccess               = "totp_success"
	auditEventTOTPFailure               = "totp_failure"
	auditEventTwoFactorReset            = "two_factor_reset"
	auditEventRateLimitTriggered        = "rate_limit_triggered"
)

type auditErrCode string

const (
	auditErrInvalidCredentials auditErrCode = "invalid_credentials"
	auditErrRateLimited        auditErrCode = "rate_limited"
	auditErrSessionNotFound    auditErrCode = "session_not_found"
	auditErrUserNotFound       auditErrCode = "user_not_found"
	auditErrDuplicate          auditErrCode = "duplicate"
	auditErrIncorrectCode      auditErrCode = "incorrect_code"
	auditErrCodeExpired        auditErrCode = "code_expired"
	auditErrNotEnrolled        auditErrCode = "totp_not_enrolled"
	auditErrNotAllowed         auditErrCode = "not_allowed"
	auditErrUnavailable        auditErrCode = "backend_unavailable"
	auditErrInternal           auditErrCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, userID string) {
	e.metricInc(MetricRequestRateLimited)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, userID, "", nil, func() map[string]string {
		return map[string]string{
			"scope": scope,
		}
	})
}

func auditErrorCode(err error) auditErrCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrSendRateLimited),
		errors.Is(err, ErrVerifyRateLimited),
		errors.Is(err, ErrRecoveryRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrIncorrectCode):
		return auditErrIncorrectCode
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrTOTPNotEnrolled):
		return auditErrNotEnrolled
	case errors.Is(err, ErrResetNotAllowed):
		return auditErrNotAllowed
	case errors.Is(err, ErrBackendFailure):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
