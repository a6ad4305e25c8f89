package authgate

import (
	"context"
	"errors"

	"github.com/atrium-labs/authgate/internal/stores"
	"github.com/atrium-labs/authgate/session"
)

// CreateSession issues a fresh session for userID and returns the raw
// bearer token alongside the stored record. flags carries the
// two-factor state the session starts with; an OAuth callback or a
// completed login both land here.
func (e *Engine) CreateSession(ctx context.Context, userID string, flags session.Flags) (*session.Session, string, error) {
	if e == nil || e.sessionStore == nil {
		return nil, "", ErrEngineNotReady
	}

	token, err := session.GenerateToken()
	if err != nil {
		return nil, "", err
	}

	sess, err := e.sessionStore.Create(ctx, token, userID, flags)
	if err != nil {
		return nil, "", e.wrapBackend(err)
	}

	e.metricInc(MetricSessionCreated)
	return sess, token, nil
}

// ValidateSessionToken resolves a bearer token to its session and owning
// user. Absent, expired, or orphaned sessions resolve to a result with
// both fields nil; only backend failures error.
func (e *Engine) ValidateSessionToken(ctx context.Context, token string) (*SessionValidationResult, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	sess, err := e.sessionStore.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricSessionExpired)
			return &SessionValidationResult{}, nil
		}
		return nil, e.wrapBackend(err)
	}

	user, err := e.userProvider.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Account deleted out from under a live session.
			_ = e.sessionStore.Delete(ctx, sess.ID)
			e.metricInc(MetricSessionInvalidated)
			return &SessionValidationResult{}, nil
		}
		return nil, e.wrapBackend(err)
	}

	e.metricInc(MetricSessionValidated)
	if sess.Renewed {
		e.metricInc(MetricSessionRenewed)
		e.emitAudit(ctx, auditEventSessionRenewed, true, sess.UserID, sess.ID, nil, nil)
	}
	return &SessionValidationResult{Session: sess, User: user}, nil
}

// InvalidateSession removes a session by its hashed ID. Unknown IDs are a
// no-op.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	if err := e.sessionStore.Delete(ctx, sessionID); err != nil {
		return e.wrapBackend(err)
	}
	e.metricInc(MetricSessionInvalidated)
	return nil
}

// InvalidateSessionToken removes the session behind a raw bearer token.
func (e *Engine) InvalidateSessionToken(ctx context.Context, token string) error {
	return e.InvalidateSession(ctx, session.HashToken(token))
}

// InvalidateAllUserSessions removes every session belonging to userID.
func (e *Engine) InvalidateAllUserSessions(ctx context.Context, userID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	if err := e.sessionStore.DeleteAllForUser(ctx, userID); err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", err, nil)
		return e.wrapBackend(err)
	}

	e.metricInc(MetricLogoutAll)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, nil)
	return nil
}

// SetSessionTwoFactorVerified flips the session's second-factor flag
// after a successful TOTP check.
func (e *Engine) SetSessionTwoFactorVerified(ctx context.Context, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if err := e.sessionStore.SetTwoFactorVerified(ctx, sessionID); err != nil {
		return e.wrapBackend(err)
	}
	return nil
}

// wrapBackend maps store transport failures to [ErrBackendFailure] while
// passing domain errors through.
func (e *Engine) wrapBackend(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrRedisUnavailable) ||
		errors.Is(err, stores.ErrVerificationRedisUnavailable) ||
		errors.Is(err, stores.ErrResetRedisUnavailable) {
		return errors.Join(ErrBackendFailure, err)
	}
	return err
}
