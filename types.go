package authgate

import (
	"context"

	"github.com/atrium-labs/authgate/session"
)

// UserRecord is the full account record returned by [UserProvider]. The
// engine never persists users itself; every field here lives in the
// caller's database.
type UserRecord struct {
	UserID        string
	Email         string
	Username      string
	PasswordHash  string
	EmailVerified bool
	// RecoveryCode holds the AES-GCM-encrypted recovery code.
	RecoveryCode []byte
	// TOTPKey holds the AES-GCM-encrypted TOTP secret, nil when the user
	// has not enrolled a second factor.
	TOTPKey []byte
}

// Registered2FA reports whether the user has a TOTP second factor enrolled.
func (u *UserRecord) Registered2FA() bool {
	return len(u.TOTPKey) > 0
}

// CreateUserInput is the input for [UserProvider.CreateUser]. The engine
// assigns UserID and builds the credential fields before calling the
// provider.
type CreateUserInput struct {
	UserID       string
	Email        string
	Username     string
	PasswordHash string
	RecoveryCode []byte
}

// UserProvider is the interface callers implement to integrate their user
// database. Lookup misses return an error satisfying
// errors.Is(err, ErrUserNotFound).
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (*UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (*UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error
	UpdateEmailAndSetVerified(ctx context.Context, userID string, email string) error
	UpdateRecoveryCode(ctx context.Context, userID string, encrypted []byte) error
	UpdateTOTPKey(ctx context.Context, userID string, encrypted []byte) error
	ClearTOTPKey(ctx context.Context, userID string) error
}

// CodeSender delivers one-time codes to users. The default implementation
// logs codes; production callers plug in their mail transport.
type CodeSender interface {
	SendVerificationCode(ctx context.Context, email string, code string) error
	SendPasswordResetCode(ctx context.Context, email string, code string) error
}

// SessionValidationResult pairs a live session with its owning user.
// Both fields are nil when the token does not resolve to a valid session.
type SessionValidationResult struct {
	Session *session.Session
	User    *UserRecord
}

// RegisterInput is the input for [Engine.Register].
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// EmailVerificationRequest is the caller-facing view of a pending email
// verification. RequestID is the opaque value handed to the client in
// the email_verification cookie; the one-time code itself only travels
// through the [CodeSender].
type EmailVerificationRequest struct {
	RequestID string
	Email     string
	ExpiresAt int64
}

// RegisterResult is returned by [Engine.Register]. Token is the raw
// session token for the fresh session; RecoveryCode is the plaintext
// recovery code shown to the user exactly once. Verification describes
// the initial email-verification request, nil when issuing it failed.
type RegisterResult struct {
	User         *UserRecord
	Session      *session.Session
	Token        string
	RecoveryCode string
	Verification *EmailVerificationRequest
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	User    *UserRecord
	Session *session.Session
	Token   string
}

// ResetSession is the engine-facing view of an in-flight password reset.
type ResetSession struct {
	ID                string
	UserID            string
	Email             string
	EmailVerified     bool
	TwoFactorVerified bool
	ExpiresAt         int64
}

// TOTPSetup holds the raw secret and otpauth:// URI returned by
// [Engine.SetupTOTP].
type TOTPSetup struct {
	SecretBase32 string
	URI          string
}
