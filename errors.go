package authgate

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountExists      = errors.New("account already exists")

	ErrLoginRateLimited    = errors.New("login rate limited")
	ErrSendRateLimited     = errors.New("code send rate limited")
	ErrVerifyRateLimited   = errors.New("code verification rate limited")
	ErrRecoveryRateLimited = errors.New("recovery code rate limited")

	ErrIncorrectCode   = errors.New("incorrect code")
	ErrCodeExpired     = errors.New("code expired, a new one was sent")
	ErrTOTPNotEnrolled = errors.New("totp not enrolled")

	ErrResetNotAllowed = errors.New("reset session not fully verified")

	ErrSessionNotFound = errors.New("session not found")

	ErrHashingFailed  = errors.New("password hashing failed")
	ErrBackendFailure = errors.New("backend unavailable")
	ErrEngineNotReady = errors.New("engine not initialized")
)
